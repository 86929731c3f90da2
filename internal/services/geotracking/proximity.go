package geotracking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/geo"
	"github.com/EcoDeli/GeoTrack/internal/models"
)

const (
	alertApproachingPickup   = "APPROACHING_PICKUP"
	alertApproachingDelivery = "APPROACHING_DELIVERY"
)

// checkProximityAlerts сравнивает позицию с точками забора и вручения.
// Забор проверяется, пока доставка ACCEPTED, вручение — в IN_TRANSIT.
// Отсутствующие или битые координаты точки просто выключают её проверку.
//
// Подавления повторов нет сознательно: каждый сэмпл внутри порога шлёт алерт
// заново, пока статус не сменится; дедупликацию делает notification-сервис.
func (s *Service) checkProximityAlerts(ctx context.Context, delivery *models.Delivery, pos *models.LocationSample) {
	if pickup, ok := models.ParseCoordinates(delivery.PickupCoordinates); ok &&
		delivery.Status == models.DeliveryStatusAccepted {
		if d := geo.Distance(pos.Latitude, pos.Longitude, pickup.Lat, pickup.Lng); d <= s.alertDistanceM {
			s.sendProximityAlert(ctx, delivery, alertApproachingPickup, d, pickup, pos)
		}
	}

	if dropoff, ok := models.ParseCoordinates(delivery.DeliveryCoordinates); ok &&
		delivery.Status == models.DeliveryStatusInTransit {
		if d := geo.Distance(pos.Latitude, pos.Longitude, dropoff.Lat, dropoff.Lng); d <= s.alertDistanceM {
			s.sendProximityAlert(ctx, delivery, alertApproachingDelivery, d, dropoff, pos)
		}
	}
}

func (s *Service) sendProximityAlert(ctx context.Context, delivery *models.Delivery, kind string, distanceM float64, target models.Coordinates, pos *models.LocationSample) {
	speed := 0.0
	if pos.SpeedKmh != nil {
		speed = *pos.SpeedKmh
	}
	eta := geo.EstimateArrival(pos.Latitude, pos.Longitude, target.Lat, target.Lng, speed, time.Now().UTC())

	var msg string
	switch kind {
	case alertApproachingPickup:
		msg = fmt.Sprintf("🚚 Курьер подъезжает к точке забора (%d м)", int(math.Round(distanceM)))
	case alertApproachingDelivery:
		msg = fmt.Sprintf("📦 Ваш курьер скоро будет у вас (%d м)", int(math.Round(distanceM)))
	}

	payload, _ := json.Marshal(map[string]any{
		"deliveryId":       delivery.ID,
		"alertType":        kind,
		"distance":         distanceM,
		"estimatedArrival": eta.Format(time.RFC3339),
	})

	s.notify(ctx, models.Notification{
		UserID:   delivery.ClientUserID,
		Type:     models.NotificationProximityAlert,
		Title:    "📍 Курьер рядом",
		Message:  msg,
		Payload:  payload,
		Priority: models.PriorityHigh,
	})
}
