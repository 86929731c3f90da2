package geotracking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/EcoDeli/GeoTrack/internal/geo"
	"github.com/EcoDeli/GeoTrack/internal/models"
)

// checkGeofences детектирует переходы через границы зон. Событие пишется
// только на смене состояния "внутри/снаружи" относительно последней записи по
// паре (сессия, зона); сэмплы в том же состоянии не порождают ни строк, ни
// нотификаций. Сериализацию read-then-write даёт per-session лок вызывающего.
func (s *Service) checkGeofences(ctx context.Context, session *models.TrackingSession, delivery *models.Delivery, pos *models.LocationSample) {
	zones, err := s.repo.ListActiveGeofences(ctx)
	if err != nil {
		slog.Warn("list geofences", "session_id", session.ID, "error", err.Error())
		return
	}

	for _, zone := range zones {
		inside := geo.Distance(pos.Latitude, pos.Longitude, zone.Latitude, zone.Longitude) <= zone.RadiusM

		last, err := s.repo.LastGeofenceEntry(ctx, session.ID, zone.ID)
		if err != nil {
			slog.Warn("load last geofence entry", "session_id", session.ID, "geofence_id", zone.ID, "error", err.Error())
			continue
		}
		wasInside := last != nil && last.Inside
		if inside == wasInside {
			continue
		}

		entry := &models.GeofenceEntry{
			SessionID:  session.ID,
			GeofenceID: zone.ID,
			Inside:     inside,
			Latitude:   pos.Latitude,
			Longitude:  pos.Longitude,
			RecordedAt: pos.RecordedAt,
		}
		if err := s.repo.AppendGeofenceEntry(ctx, entry); err != nil {
			slog.Error("append geofence entry", "session_id", session.ID, "geofence_id", zone.ID, "error", err.Error())
			continue
		}

		s.sendGeofenceAlert(ctx, delivery, zone, inside)
	}
}

func (s *Service) sendGeofenceAlert(ctx context.Context, delivery *models.Delivery, zone *models.GeofenceZone, entering bool) {
	title := "📍 Выход из зоны"
	msg := fmt.Sprintf("Курьер покинул зону «%s»", zone.Name)
	if entering {
		title = "📍 Вход в зону"
		msg = fmt.Sprintf("Курьер вошёл в зону «%s»", zone.Name)
	}

	payload, _ := json.Marshal(map[string]any{
		"deliveryId":   delivery.ID,
		"geofenceId":   zone.ID,
		"geofenceName": zone.Name,
		"isEntering":   entering,
	})

	s.notify(ctx, models.Notification{
		UserID:   delivery.ClientUserID,
		Type:     models.NotificationGeofenceAlert,
		Title:    title,
		Message:  msg,
		Payload:  payload,
		Priority: models.PriorityMedium,
	})
}
