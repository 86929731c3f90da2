package pggeo

import (
	"context"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const sessionColumns = `
  id, delivery_id, courier_id,
  started_at, ended_at, active,
  total_distance_m, avg_speed_kmh, max_speed_kmh,
  last_seen_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.TrackingSession, error) {
	var ts models.TrackingSession
	var endedAt *time.Time
	var maxSpeed *float64
	if err := row.Scan(
		&ts.ID, &ts.DeliveryID, &ts.CourierID,
		&ts.StartedAt, &endedAt, &ts.Active,
		&ts.TotalDistanceM, &ts.AvgSpeedKmh, &maxSpeed,
		&ts.LastSeenAt, &ts.CreatedAt, &ts.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ts.EndedAt = endedAt
	ts.MaxSpeedKmh = maxSpeed
	return &ts, nil
}

func (s *Storage) CreateSession(ctx context.Context, deliveryID, courierID uint64) (*models.TrackingSession, error) {
	now := time.Now().UTC()

	row := s.db.QueryRow(ctx, `
INSERT INTO tracking_sessions (
  delivery_id, courier_id, started_at, active, last_seen_at, created_at, updated_at
)
VALUES ($1,$2,$3,TRUE,$3,$3,$3)
RETURNING`+sessionColumns, deliveryID, courierID, now)

	ts, err := scanSession(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrActiveSessionExists
		}
		return nil, errors.Wrap(err, "insert tracking session")
	}
	return ts, nil
}

func (s *Storage) GetSessionByID(ctx context.Context, sessionID uint64) (*models.TrackingSession, error) {
	row := s.db.QueryRow(ctx, `SELECT`+sessionColumns+` FROM tracking_sessions WHERE id = $1`, sessionID)
	ts, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select session")
	}
	return ts, nil
}

// GetActiveSessionByDelivery возвращает (nil, nil), если активной сессии нет.
func (s *Storage) GetActiveSessionByDelivery(ctx context.Context, deliveryID uint64) (*models.TrackingSession, error) {
	row := s.db.QueryRow(ctx, `
SELECT`+sessionColumns+`
FROM tracking_sessions
WHERE delivery_id = $1 AND active
`, deliveryID)
	ts, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select active session by delivery")
	}
	return ts, nil
}

func (s *Storage) GetActiveSessionsByCourier(ctx context.Context, courierID uint64) ([]*models.TrackingSession, error) {
	rows, err := s.db.Query(ctx, `
SELECT`+sessionColumns+`
FROM tracking_sessions
WHERE courier_id = $1 AND active
ORDER BY id
`, courierID)
	if err != nil {
		return nil, errors.Wrap(err, "select active sessions by courier")
	}
	defer rows.Close()

	var out []*models.TrackingSession
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan session")
		}
		out = append(out, ts)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) CloseSession(ctx context.Context, sessionID uint64, endedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracking_sessions
SET active = FALSE, ended_at = $2, updated_at = now()
WHERE id = $1
`, sessionID, endedAt.UTC())
	return errors.Wrap(err, "close session")
}

// ApplyIncrementalStats двигает скользящие счётчики сессии одним UPDATE:
// read-modify-write происходит внутри БД, поэтому конкурирующие сэмплы одной
// сессии не теряют приращения дистанции.
func (s *Storage) ApplyIncrementalStats(ctx context.Context, sessionID uint64, deltaM, speedKmh float64, seenAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracking_sessions
SET
  total_distance_m = total_distance_m + $2,
  avg_speed_kmh = (avg_speed_kmh + $3) / 2,
  last_seen_at = $4,
  updated_at = now()
WHERE id = $1
`, sessionID, deltaM, speedKmh, seenAt.UTC())
	return errors.Wrap(err, "apply incremental stats")
}

func (s *Storage) TouchSession(ctx context.Context, sessionID uint64, seenAt time.Time) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracking_sessions SET last_seen_at = $2, updated_at = now() WHERE id = $1
`, sessionID, seenAt.UTC())
	return errors.Wrap(err, "touch session")
}

func (s *Storage) FinalizeSessionStats(ctx context.Context, sessionID uint64, totalM, avgKmh float64, maxKmh *float64) error {
	_, err := s.db.Exec(ctx, `
UPDATE tracking_sessions
SET
  total_distance_m = $2,
  avg_speed_kmh = $3,
  max_speed_kmh = $4,
  updated_at = now()
WHERE id = $1
`, sessionID, totalM, avgKmh, maxKmh)
	return errors.Wrap(err, "finalize session stats")
}

// ClaimIdleSessions выбирает активные сессии, от которых давно не было сэмплов,
// и "бронирует" их сдвигом last_seen_at, чтобы параллельный воркер не взял те же
// строки. SELECT ... FOR UPDATE SKIP LOCKED, как и в остальных claim-циклах.
func (s *Storage) ClaimIdleSessions(ctx context.Context, now time.Time, idleFor time.Duration, limit int, lease time.Duration) ([]*models.TrackingSession, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := now.UTC().Add(-idleFor)
	rows, err := tx.Query(ctx, `
SELECT`+sessionColumns+`
FROM tracking_sessions
WHERE active AND last_seen_at <= $1
ORDER BY last_seen_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, cutoff, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select idle sessions")
	}
	defer rows.Close()

	var picked []*models.TrackingSession
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan idle session")
		}
		picked = append(picked, ts)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, ts := range picked {
		_, err := tx.Exec(ctx, `UPDATE tracking_sessions SET last_seen_at = $2, updated_at = now() WHERE id = $1`, ts.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease idle session")
		}
		ts.LastSeenAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}
