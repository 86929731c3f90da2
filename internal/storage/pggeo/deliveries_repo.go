package pggeo

import (
	"context"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Доставками владеет внешний сервис заказов; здесь только локальная копия
// метаданных, которые нужны трекингу (статус, клиент, координаты точек).

func (s *Storage) GetDelivery(ctx context.Context, deliveryID uint64) (*models.Delivery, error) {
	var d models.Delivery
	var pickup, dropoff *string
	err := s.db.QueryRow(ctx, `
SELECT id, client_user_id, courier_id, status,
       pickup_coordinates, delivery_coordinates,
       created_at, updated_at
FROM deliveries
WHERE id = $1
`, deliveryID).Scan(
		&d.ID, &d.ClientUserID, &d.CourierID, &d.Status,
		&pickup, &dropoff,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select delivery")
	}
	d.PickupCoordinates = pickup
	d.DeliveryCoordinates = dropoff
	return &d, nil
}

// UpsertDelivery применяет снапшот доставки, пришедший от сервиса заказов.
func (s *Storage) UpsertDelivery(ctx context.Context, d *models.Delivery) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO deliveries (
  id, client_user_id, courier_id, status,
  pickup_coordinates, delivery_coordinates, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
ON CONFLICT (id)
DO UPDATE SET
  client_user_id = EXCLUDED.client_user_id,
  courier_id = EXCLUDED.courier_id,
  status = EXCLUDED.status,
  pickup_coordinates = EXCLUDED.pickup_coordinates,
  delivery_coordinates = EXCLUDED.delivery_coordinates,
  updated_at = EXCLUDED.updated_at
RETURNING created_at
`, d.ID, d.ClientUserID, d.CourierID, d.Status,
		d.PickupCoordinates, d.DeliveryCoordinates, now).Scan(&d.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "upsert delivery")
	}
	d.UpdatedAt = now
	return nil
}

func (s *Storage) SetDeliveryStatus(ctx context.Context, deliveryID uint64, status string) error {
	_, err := s.db.Exec(ctx, `
UPDATE deliveries SET status = $2, updated_at = now() WHERE id = $1
`, deliveryID, status)
	return errors.Wrap(err, "set delivery status")
}
