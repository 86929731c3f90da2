package geotracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/geo"
	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/pkg/errors"
)

// UpdatePosition применяет сырой сэмпл курьера ко всем его активным сессиям.
// Нет активных сессий — молча выходим: курьеры штатно репортят позицию и вне
// доставок, это не ошибка. Ошибка одной сессии не прерывает обработку
// остальных; наружу отдаём первую из них.
func (s *Service) UpdatePosition(ctx context.Context, courierID uint64, sample models.LocationSample) error {
	if courierID == 0 {
		return errors.Wrap(ErrInvalid, "courierId is required")
	}
	if sample.Latitude < -90 || sample.Latitude > 90 {
		return errors.Wrapf(ErrInvalid, "latitude out of range: %f", sample.Latitude)
	}
	if sample.Longitude < -180 || sample.Longitude > 180 {
		return errors.Wrapf(ErrInvalid, "longitude out of range: %f", sample.Longitude)
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}

	// Инвариант "одна активная сессия на доставку" держит БД, но по курьеру
	// их может оказаться несколько (параллельные доставки) — обрабатываем все.
	sessions, err := s.repo.GetActiveSessionsByCourier(ctx, courierID)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	var firstErr error
	for _, session := range sessions {
		if err := s.applySample(ctx, session, sample); err != nil {
			slog.Error("apply position sample",
				"session_id", session.ID, "delivery_id", session.DeliveryID, "error", err.Error())
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (s *Service) applySample(ctx context.Context, session *models.TrackingSession, sample models.LocationSample) error {
	unlock := s.locks.lock(session.ID)
	defer unlock()

	// Предыдущий сэмпл читаем до вставки нового, он нужен для приращения
	// дистанции и мгновенной скорости.
	prev, err := s.repo.LatestSessionSample(ctx, session.ID)
	if err != nil {
		return err
	}

	ls := sample
	ls.ID = 0
	ls.SessionID = session.ID
	if err := s.repo.AppendSample(ctx, &ls); err != nil {
		return err
	}

	if err := s.applyIncrementalStats(ctx, session.ID, prev, &ls); err != nil {
		return err
	}

	s.cachePosition(ctx, session.DeliveryID, &ls)

	// Дальше только алертинг: его сбои логируем и глотаем, сэмпл уже записан.
	delivery, err := s.repo.GetDelivery(ctx, session.DeliveryID)
	if err != nil {
		slog.Warn("load delivery for alerting", "delivery_id", session.DeliveryID, "error", err.Error())
		return nil
	}
	if delivery == nil {
		return nil
	}

	s.checkProximityAlerts(ctx, delivery, &ls)
	s.checkGeofences(ctx, session, delivery, &ls)
	return nil
}

// applyIncrementalStats — инкрементальный шаг статистики: дистанция прибавляется,
// средняя скорость сглаживается как (старая + мгновенная) / 2. Это намеренно
// простое, не взвешенное по времени среднее; честный пересчёт происходит при
// остановке сессии.
func (s *Service) applyIncrementalStats(ctx context.Context, sessionID uint64, prev, curr *models.LocationSample) error {
	if prev == nil {
		return s.repo.TouchSession(ctx, sessionID, curr.RecordedAt)
	}

	deltaM := geo.Distance(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
	elapsedH := curr.RecordedAt.Sub(prev.RecordedAt).Hours()

	// Нулевая или отрицательная дельта времени (дубль, out-of-order) даёт
	// нулевой вклад в скорость, а не деление на ноль.
	speedKmh := 0.0
	if elapsedH > 0 {
		speedKmh = deltaM / 1000 / elapsedH
	}

	return s.repo.ApplyIncrementalStats(ctx, sessionID, deltaM, speedKmh, curr.RecordedAt)
}
