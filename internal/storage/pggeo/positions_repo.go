package pggeo

import (
	"context"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const sampleColumns = `
  id, session_id, latitude, longitude, accuracy_m,
  speed_kmh, heading_deg, altitude_m, recorded_at, created_at`

func scanSample(row pgx.Row) (*models.LocationSample, error) {
	var ls models.LocationSample
	var speed, heading, altitude *float64
	if err := row.Scan(
		&ls.ID, &ls.SessionID, &ls.Latitude, &ls.Longitude, &ls.AccuracyM,
		&speed, &heading, &altitude, &ls.RecordedAt, &ls.CreatedAt,
	); err != nil {
		return nil, err
	}
	ls.SpeedKmh = speed
	ls.HeadingDeg = heading
	ls.AltitudeM = altitude
	return &ls, nil
}

// AppendSample пишет сэмпл в append-only историю и проставляет ID/CreatedAt.
func (s *Storage) AppendSample(ctx context.Context, ls *models.LocationSample) error {
	now := time.Now().UTC()
	err := s.db.QueryRow(ctx, `
INSERT INTO location_samples (
  session_id, latitude, longitude, accuracy_m,
  speed_kmh, heading_deg, altitude_m, recorded_at, created_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id
`, ls.SessionID, ls.Latitude, ls.Longitude, ls.AccuracyM,
		ls.SpeedKmh, ls.HeadingDeg, ls.AltitudeM, ls.RecordedAt.UTC(), now).Scan(&ls.ID)
	if err != nil {
		return errors.Wrap(err, "insert location sample")
	}
	ls.CreatedAt = now
	return nil
}

// LatestSessionSample возвращает (nil, nil), если у сессии ещё нет сэмплов.
func (s *Storage) LatestSessionSample(ctx context.Context, sessionID uint64) (*models.LocationSample, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+sampleColumns+`
FROM location_samples
WHERE session_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT 1
`, sessionID)
	ls, err := scanSample(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest session sample")
	}
	return ls, nil
}

func (s *Storage) ListSessionSamples(ctx context.Context, sessionID uint64) ([]*models.LocationSample, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+sampleColumns+`
FROM location_samples
WHERE session_id = $1
ORDER BY recorded_at ASC, id ASC
`, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "select session samples")
	}
	defer rows.Close()

	var out []*models.LocationSample
	for rows.Next() {
		ls, err := scanSample(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		out = append(out, ls)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// LatestDeliverySample — последний сэмпл активной сессии доставки, (nil, nil)
// когда сессии нет или она ещё пуста.
func (s *Storage) LatestDeliverySample(ctx context.Context, deliveryID uint64) (*models.LocationSample, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+sampleColumns+`
FROM location_samples
WHERE session_id IN (
  SELECT id FROM tracking_sessions WHERE delivery_id = $1 AND active
)
ORDER BY recorded_at DESC, id DESC
LIMIT 1
`, deliveryID)
	ls, err := scanSample(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select latest delivery sample")
	}
	return ls, nil
}

// ListDeliverySamples отдаёт историю по всем сессиям доставки (и закрытым тоже)
// в возрастающем порядке времени, с необязательными границами from/to.
func (s *Storage) ListDeliverySamples(ctx context.Context, deliveryID uint64, from, to *time.Time) ([]*models.LocationSample, error) {
	q := `
SELECT` + sampleColumns + `
FROM location_samples
WHERE session_id IN (
  SELECT id FROM tracking_sessions WHERE delivery_id = $1
)`
	args := []any{deliveryID}
	if from != nil {
		args = append(args, from.UTC())
		q += ` AND recorded_at >= $2`
	}
	if to != nil {
		args = append(args, to.UTC())
		if from != nil {
			q += ` AND recorded_at <= $3`
		} else {
			q += ` AND recorded_at <= $2`
		}
	}
	q += ` ORDER BY recorded_at ASC, id ASC`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select delivery samples")
	}
	defer rows.Close()

	out := make([]*models.LocationSample, 0)
	for rows.Next() {
		ls, err := scanSample(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan sample")
		}
		out = append(out, ls)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
