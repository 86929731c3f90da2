package pggeo

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS deliveries (
  id BIGSERIAL PRIMARY KEY,
  client_user_id BIGINT NOT NULL,
  courier_id BIGINT NOT NULL,
  status TEXT NOT NULL,
  pickup_coordinates TEXT NULL,
  delivery_coordinates TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS tracking_sessions (
  id BIGSERIAL PRIMARY KEY,
  delivery_id BIGINT NOT NULL REFERENCES deliveries(id),
  courier_id BIGINT NOT NULL,
  started_at TIMESTAMPTZ NOT NULL,
  ended_at TIMESTAMPTZ NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  total_distance_m DOUBLE PRECISION NOT NULL DEFAULT 0,
  avg_speed_kmh DOUBLE PRECISION NOT NULL DEFAULT 0,
  max_speed_kmh DOUBLE PRECISION NULL,
  last_seen_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		// Инвариант "не больше одной активной сессии на доставку" держит БД,
		// а не код: две гонящиеся вставки не пройдут обе.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_sessions_active_delivery
  ON tracking_sessions(delivery_id) WHERE active`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_courier_active
  ON tracking_sessions(courier_id) WHERE active`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_sessions_last_seen
  ON tracking_sessions(last_seen_at) WHERE active`,
		`
CREATE TABLE IF NOT EXISTS location_samples (
  id BIGSERIAL PRIMARY KEY,
  session_id BIGINT NOT NULL REFERENCES tracking_sessions(id) ON DELETE CASCADE,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  accuracy_m DOUBLE PRECISION NOT NULL,
  speed_kmh DOUBLE PRECISION NULL,
  heading_deg DOUBLE PRECISION NULL,
  altitude_m DOUBLE PRECISION NULL,
  recorded_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_location_samples_session_recorded
  ON location_samples(session_id, recorded_at)`,
		`
CREATE TABLE IF NOT EXISTS geofences (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL,
  type TEXT NOT NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  radius_m DOUBLE PRECISION NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE
)`,
		`
CREATE TABLE IF NOT EXISTS geofence_entries (
  id BIGSERIAL PRIMARY KEY,
  session_id BIGINT NOT NULL REFERENCES tracking_sessions(id) ON DELETE CASCADE,
  geofence_id BIGINT NOT NULL REFERENCES geofences(id) ON DELETE CASCADE,
  inside BOOLEAN NOT NULL,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  recorded_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_geofence_entries_session_zone
  ON geofence_entries(session_id, geofence_id, recorded_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
