package geotracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/cache"
	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/EcoDeli/GeoTrack/internal/storage/pggeo"
	"github.com/pkg/errors"
)

const defaultAlertDistanceM = 500

type Repository interface {
	GetDelivery(ctx context.Context, deliveryID uint64) (*models.Delivery, error)

	CreateSession(ctx context.Context, deliveryID, courierID uint64) (*models.TrackingSession, error)
	GetActiveSessionByDelivery(ctx context.Context, deliveryID uint64) (*models.TrackingSession, error)
	GetActiveSessionsByCourier(ctx context.Context, courierID uint64) ([]*models.TrackingSession, error)
	CloseSession(ctx context.Context, sessionID uint64, endedAt time.Time) error
	ApplyIncrementalStats(ctx context.Context, sessionID uint64, deltaM, speedKmh float64, seenAt time.Time) error
	TouchSession(ctx context.Context, sessionID uint64, seenAt time.Time) error
	FinalizeSessionStats(ctx context.Context, sessionID uint64, totalM, avgKmh float64, maxKmh *float64) error

	AppendSample(ctx context.Context, ls *models.LocationSample) error
	LatestSessionSample(ctx context.Context, sessionID uint64) (*models.LocationSample, error)
	ListSessionSamples(ctx context.Context, sessionID uint64) ([]*models.LocationSample, error)
	LatestDeliverySample(ctx context.Context, deliveryID uint64) (*models.LocationSample, error)
	ListDeliverySamples(ctx context.Context, deliveryID uint64, from, to *time.Time) ([]*models.LocationSample, error)

	ListActiveGeofences(ctx context.Context) ([]*models.GeofenceZone, error)
	LastGeofenceEntry(ctx context.Context, sessionID, geofenceID uint64) (*models.GeofenceEntry, error)
	AppendGeofenceEntry(ctx context.Context, e *models.GeofenceEntry) error
}

// Notifier заказывает нотификацию у внешнего сервиса. Доставка и ретраи — его
// забота, трекинг нотификации не ждёт.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

type Service struct {
	repo     Repository
	notifier Notifier

	cache       cache.BytesCache
	positionTTL time.Duration

	alertDistanceM float64

	locks *sessionLocks
}

func New(repo Repository, notifier Notifier, c cache.BytesCache, positionTTL time.Duration) *Service {
	return &Service{
		repo:           repo,
		notifier:       notifier,
		cache:          c,
		positionTTL:    positionTTL,
		alertDistanceM: defaultAlertDistanceM,
		locks:          newSessionLocks(),
	}
}

func (s *Service) WithAlertDistance(meters float64) *Service {
	if meters > 0 {
		s.alertDistanceM = meters
	}
	return s
}

func trackableStatus(status string) bool {
	switch status {
	case models.DeliveryStatusAccepted, models.DeliveryStatusPickedUp, models.DeliveryStatusInTransit:
		return true
	}
	return false
}

// StartTracking открывает сессию трекинга для доставки. Вторая активная сессия
// на ту же доставку невозможна: и проверкой здесь, и уникальным индексом в БД.
func (s *Service) StartTracking(ctx context.Context, deliveryID, courierID uint64) (*models.TrackingSession, error) {
	if deliveryID == 0 || courierID == 0 {
		return nil, errors.Wrap(ErrInvalid, "deliveryId and courierId are required")
	}

	delivery, err := s.repo.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, errors.Wrapf(ErrNotFound, "delivery %d", deliveryID)
	}
	if delivery.CourierID != courierID {
		return nil, errors.Wrapf(ErrForbidden, "delivery %d is not assigned to courier %d", deliveryID, courierID)
	}
	if !trackableStatus(delivery.Status) {
		return nil, errors.Wrapf(ErrConflict, "delivery %d status %s does not permit tracking", deliveryID, delivery.Status)
	}

	existing, err := s.repo.GetActiveSessionByDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, errors.Wrapf(ErrConflict, "active tracking session %d already exists for delivery %d", existing.ID, deliveryID)
	}

	session, err := s.repo.CreateSession(ctx, deliveryID, courierID)
	if err != nil {
		if errors.Is(err, pggeo.ErrActiveSessionExists) {
			// Гонка двух стартов: проверку выше прошли оба, вставку — один.
			return nil, errors.Wrapf(ErrConflict, "active tracking session already exists for delivery %d", deliveryID)
		}
		return nil, err
	}

	s.notify(ctx, models.Notification{
		UserID:   delivery.ClientUserID,
		Type:     models.NotificationTrackingStarted,
		Title:    "📍 Трекинг включён",
		Message:  "Теперь вы можете следить за доставкой в реальном времени.",
		Payload:  mustPayload(map[string]any{"deliveryId": deliveryID, "trackingSessionId": session.ID}),
		Priority: models.PriorityMedium,
	})

	return session, nil
}

// StopTracking закрывает активную сессию и пересчитывает финальную статистику
// из полной истории сэмплов. Скользящие значения живой сессии — двухточечное
// среднее, финальные — взвешенные по времени; расхождение ожидаемо.
func (s *Service) StopTracking(ctx context.Context, deliveryID, courierID uint64) (*models.TrackingSession, error) {
	session, err := s.repo.GetActiveSessionByDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.CourierID != courierID {
		return nil, errors.Wrapf(ErrNotFound, "no active tracking session for delivery %d and courier %d", deliveryID, courierID)
	}

	unlock := s.locks.lock(session.ID)
	defer func() {
		unlock()
		// Сессия закрыта, её мьютекс больше не нужен.
		s.locks.forget(session.ID)
	}()

	endedAt := time.Now().UTC()
	if err := s.repo.CloseSession(ctx, session.ID, endedAt); err != nil {
		return nil, err
	}
	session.Active = false
	session.EndedAt = &endedAt

	if err := s.finalizeStats(ctx, session); err != nil {
		return nil, err
	}

	if s.cache != nil && s.positionTTL > 0 {
		if err := s.cache.Del(ctx, positionKey(deliveryID)); err != nil {
			slog.Warn("drop cached position", "delivery_id", deliveryID, "error", err.Error())
		}
	}

	if delivery, err := s.repo.GetDelivery(ctx, deliveryID); err != nil {
		slog.Warn("load delivery for tracking-ended notification", "delivery_id", deliveryID, "error", err.Error())
	} else if delivery != nil {
		s.notify(ctx, models.Notification{
			UserID:   delivery.ClientUserID,
			Type:     models.NotificationTrackingEnded,
			Title:    "📍 Трекинг завершён",
			Message:  "Отслеживание вашей доставки закончилось.",
			Payload:  mustPayload(map[string]any{"deliveryId": deliveryID, "trackingSessionId": session.ID}),
			Priority: models.PriorityLow,
		})
	}

	return session, nil
}

// CurrentPosition — последний сэмпл активной сессии доставки. Отсутствие
// позиции (nil, nil) — не ошибка: сессии может не быть вовсе.
func (s *Service) CurrentPosition(ctx context.Context, deliveryID uint64) (*models.LocationSample, error) {
	if s.cache != nil && s.positionTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, positionKey(deliveryID)); err == nil && ok {
			var ls models.LocationSample
			if json.Unmarshal(b, &ls) == nil {
				return &ls, nil
			}
		}
	}

	ls, err := s.repo.LatestDeliverySample(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if ls != nil {
		s.cachePosition(ctx, deliveryID, ls)
	}
	return ls, nil
}

// History — упорядоченная по времени история позиций доставки, включая
// закрытые сессии. Пустой срез, если позиций не было.
func (s *Service) History(ctx context.Context, deliveryID uint64, from, to *time.Time) ([]*models.LocationSample, error) {
	return s.repo.ListDeliverySamples(ctx, deliveryID, from, to)
}

func (s *Service) cachePosition(ctx context.Context, deliveryID uint64, ls *models.LocationSample) {
	if s.cache == nil || s.positionTTL <= 0 {
		return
	}
	b, _ := json.Marshal(ls)
	if err := s.cache.Set(ctx, positionKey(deliveryID), b, s.positionTTL); err != nil {
		slog.Warn("cache position", "delivery_id", deliveryID, "error", err.Error())
	}
}

func (s *Service) notify(ctx context.Context, n models.Notification) {
	if s.notifier == nil {
		return
	}
	// Нотификации — best effort: история позиций первична, упавший диспатч
	// не должен откатывать уже записанные данные.
	if err := s.notifier.Notify(ctx, n); err != nil {
		slog.Error("dispatch notification", "user_id", n.UserID, "type", n.Type, "error", err.Error())
	}
}

func mustPayload(v map[string]any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func positionKey(deliveryID uint64) string {
	return fmt.Sprintf("delivery:%d:position", deliveryID)
}
