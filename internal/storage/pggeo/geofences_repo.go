package pggeo

import (
	"context"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) ListActiveGeofences(ctx context.Context) ([]*models.GeofenceZone, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, name, type, latitude, longitude, radius_m, active
FROM geofences
WHERE active
ORDER BY id
`)
	if err != nil {
		return nil, errors.Wrap(err, "select geofences")
	}
	defer rows.Close()

	var out []*models.GeofenceZone
	for rows.Next() {
		var z models.GeofenceZone
		if err := rows.Scan(&z.ID, &z.Name, &z.Type, &z.Latitude, &z.Longitude, &z.RadiusM, &z.Active); err != nil {
			return nil, errors.Wrap(err, "scan geofence")
		}
		out = append(out, &z)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// LastGeofenceEntry — последняя запись по паре (сессия, зона); она и есть
// текущее состояние "внутри/снаружи". (nil, nil), если записей ещё не было.
func (s *Storage) LastGeofenceEntry(ctx context.Context, sessionID, geofenceID uint64) (*models.GeofenceEntry, error) {
	var e models.GeofenceEntry
	err := s.db.QueryRow(ctx, `
SELECT id, session_id, geofence_id, inside, latitude, longitude, recorded_at, created_at
FROM geofence_entries
WHERE session_id = $1 AND geofence_id = $2
ORDER BY recorded_at DESC, id DESC
LIMIT 1
`, sessionID, geofenceID).Scan(
		&e.ID, &e.SessionID, &e.GeofenceID, &e.Inside,
		&e.Latitude, &e.Longitude, &e.RecordedAt, &e.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select last geofence entry")
	}
	return &e, nil
}

func (s *Storage) AppendGeofenceEntry(ctx context.Context, e *models.GeofenceEntry) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO geofence_entries (
  session_id, geofence_id, inside, latitude, longitude, recorded_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING id
`, e.SessionID, e.GeofenceID, e.Inside, e.Latitude, e.Longitude, e.RecordedAt.UTC(), now).Scan(&e.ID)
	if err != nil {
		return errors.Wrap(err, "insert geofence entry")
	}
	e.CreatedAt = now
	return nil
}

// CreateGeofence — служебный метод для сидинга зон; сам трекинг их не создаёт.
func (s *Storage) CreateGeofence(ctx context.Context, z *models.GeofenceZone) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO geofences (name, type, latitude, longitude, radius_m, active)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`, z.Name, z.Type, z.Latitude, z.Longitude, z.RadiusM, z.Active).Scan(&z.ID)
	return errors.Wrap(err, "insert geofence")
}
