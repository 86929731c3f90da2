// Package reaper закрывает брошенные сессии трекинга: устройство курьера
// умерло посреди доставки, сэмплы перестали приходить, а сессия осталась
// активной и держит инвариант "одна активная на доставку".
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
)

type Repository interface {
	ClaimIdleSessions(ctx context.Context, now time.Time, idleFor time.Duration, limit int, lease time.Duration) ([]*models.TrackingSession, error)
}

type SessionStopper interface {
	StopTracking(ctx context.Context, deliveryID, courierID uint64) (*models.TrackingSession, error)
}

type Reaper struct {
	repo    Repository
	stopper SessionStopper

	pollInterval time.Duration
	batchSize    int
	concurrency  int
	idleAfter    time.Duration
	lease        time.Duration

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalClaimed        atomic.Int64
	totalStopped        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(repo Repository, stopper SessionStopper) *Reaper {
	return &Reaper{
		repo:              repo,
		stopper:           stopper,
		pollInterval:      30 * time.Second,
		batchSize:         100,
		concurrency:       10,
		idleAfter:         15 * time.Minute,
		lease:             2 * time.Minute,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Reaper) WithSettings(pollInterval time.Duration, batchSize, concurrency int, idleAfter, lease time.Duration) *Reaper {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	if concurrency > 0 {
		r.concurrency = concurrency
	}
	if idleAfter > 0 {
		r.idleAfter = idleAfter
	}
	if lease > 0 {
		r.lease = lease
	}
	return r
}

// Trigger запускает внеочередной цикл (best-effort, без блокировки).
func (r *Reaper) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalClaimed  int64      `json:"totalClaimed"`
	TotalStopped  int64      `json:"totalStopped"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (r *Reaper) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalClaimed: r.totalClaimed.Load(),
		TotalStopped: r.totalStopped.Load(),
		TotalErrors:  r.totalErrors.Load(),
		InFlight:     r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.runOnce(ctx)
		case <-r.triggerCh:
			r.runOnce(ctx)
		}
	}
}

func (r *Reaper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	r.lastCycleUnixNano.Store(now.UnixNano())

	sessions, err := r.repo.ClaimIdleSessions(ctx, now, r.idleAfter, r.batchSize, r.lease)
	if err != nil {
		slog.Error("claim idle sessions", "error", err.Error())
		r.lastErrorMu.Lock()
		r.lastError = err.Error()
		r.lastErrorMu.Unlock()
		return
	}
	r.totalClaimed.Add(int64(len(sessions)))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	for _, sess := range sessions {
		sem <- struct{}{}
		wg.Add(1)
		sessCopy := sess
		r.inFlight.Add(1)
		go func() {
			defer func() {
				r.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if _, err := r.stopper.StopTracking(ctx, sessCopy.DeliveryID, sessCopy.CourierID); err != nil {
				r.totalErrors.Add(1)
				r.lastErrorMu.Lock()
				r.lastError = err.Error()
				r.lastErrorMu.Unlock()
				slog.Error("stop idle session",
					"session_id", sessCopy.ID, "delivery_id", sessCopy.DeliveryID, "error", err.Error())
				return
			}
			r.totalStopped.Add(1)
			slog.Info("idle session stopped",
				"session_id", sessCopy.ID, "delivery_id", sessCopy.DeliveryID, "idle_after", r.idleAfter.String())
		}()
	}
	wg.Wait()
}
