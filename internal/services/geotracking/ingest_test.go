package geotracking

import (
	"context"
	"testing"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestUpdatePosition_Validation(t *testing.T) {
	svc := New(newMemRepo(), nil, nil, 0)
	ctx := context.Background()

	require.Error(t, svc.UpdatePosition(ctx, 0, models.LocationSample{Latitude: 1, Longitude: 1}))
	require.Error(t, svc.UpdatePosition(ctx, 7, models.LocationSample{Latitude: 91, Longitude: 1}))
	require.Error(t, svc.UpdatePosition(ctx, 7, models.LocationSample{Latitude: -91, Longitude: 1}))
	require.Error(t, svc.UpdatePosition(ctx, 7, models.LocationSample{Latitude: 1, Longitude: 181}))
	require.Error(t, svc.UpdatePosition(ctx, 7, models.LocationSample{Latitude: 1, Longitude: -181}))
}

func TestUpdatePosition_NoActiveSessionsIsSilent(t *testing.T) {
	repo := newMemRepo()
	svc := New(repo, nil, nil, 0)

	err := svc.UpdatePosition(context.Background(), 7, models.LocationSample{
		Latitude: 48.85, Longitude: 2.35, RecordedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Zero(t, repo.nextSampleID)
}

func TestUpdatePosition_FillsZeroRecordedAt(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{ID: 1, ClientUserID: 100, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	svc := New(repo, nil, nil, 0)

	_, err := svc.StartTracking(context.Background(), 1, 7)
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePosition(context.Background(), 7, models.LocationSample{
		Latitude: 48.85, Longitude: 2.35,
	}))

	samples, err := repo.ListSessionSamples(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	require.False(t, samples[0].RecordedAt.IsZero())
}

// Три сэмпла по прямой: +0.001° широты (~111 м) каждые 60 секунд. Скользящая
// статистика должна накапливать дистанцию, финализация при остановке —
// пересчитать её по полной истории.
func TestUpdatePosition_ThreeSampleTrip(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{ID: 1, ClientUserID: 100, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	svc := New(repo, nil, nil, 0)
	ctx := context.Background()

	started, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := 40.0
	points := []models.LocationSample{
		{Latitude: 48.8566, Longitude: 2.3522, RecordedAt: t0},
		{Latitude: 48.8576, Longitude: 2.3522, RecordedAt: t0.Add(60 * time.Second), SpeedKmh: &v},
		{Latitude: 48.8586, Longitude: 2.3522, RecordedAt: t0.Add(120 * time.Second)},
	}
	for _, p := range points {
		require.NoError(t, svc.UpdatePosition(ctx, 7, p))
	}

	live, err := repo.GetActiveSessionByDelivery(ctx, 1)
	require.NoError(t, err)
	require.InDelta(t, 222.4, live.TotalDistanceM, 2)
	require.Greater(t, live.AvgSpeedKmh, 0.0)
	require.Equal(t, t0.Add(120*time.Second), live.LastSeenAt)

	session, err := svc.StopTracking(ctx, 1, 7)
	require.NoError(t, err)
	require.Equal(t, started.ID, session.ID)
	require.False(t, session.Active)

	// Финальная статистика: ~222 м за 120 секунд — около 6.7 км/ч.
	require.InDelta(t, 222.4, session.TotalDistanceM, 2)
	require.InDelta(t, 6.67, session.AvgSpeedKmh, 0.2)
	require.NotNil(t, session.MaxSpeedKmh)
	require.Equal(t, 40.0, *session.MaxSpeedKmh)
}

func TestUpdatePosition_OutOfOrderSampleGivesZeroSpeed(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{ID: 1, ClientUserID: 100, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	svc := New(repo, nil, nil, 0)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8566, Longitude: 2.3522, RecordedAt: t0,
	}))
	// Сэмпл из прошлого: дистанция засчитывается, скорость — нет.
	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8576, Longitude: 2.3522, RecordedAt: t0.Add(-30 * time.Second),
	}))

	live, err := repo.GetActiveSessionByDelivery(ctx, 1)
	require.NoError(t, err)
	require.Greater(t, live.TotalDistanceM, 0.0)
	require.Zero(t, live.AvgSpeedKmh)
}

// failingRepo роняет вставку сэмпла для одной конкретной сессии.
type failingRepo struct {
	*memRepo
	failSessionID uint64
}

func (r *failingRepo) AppendSample(ctx context.Context, ls *models.LocationSample) error {
	if ls.SessionID == r.failSessionID {
		return errors.New("insert failed")
	}
	return r.memRepo.AppendSample(ctx, ls)
}

func TestUpdatePosition_SessionErrorDoesNotBlockOthers(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{ID: 1, ClientUserID: 100, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	repo.addDelivery(models.Delivery{ID: 2, ClientUserID: 101, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	svc := New(repo, nil, nil, 0)
	ctx := context.Background()

	first, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)
	second, err := svc.StartTracking(ctx, 2, 7)
	require.NoError(t, err)

	svc = New(&failingRepo{memRepo: repo, failSessionID: first.ID}, nil, nil, 0)

	err = svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.85, Longitude: 2.35, RecordedAt: time.Now().UTC(),
	})
	require.Error(t, err)

	// Вторая сессия сэмпл получила несмотря на ошибку первой.
	require.Empty(t, repo.samples[first.ID])
	require.Len(t, repo.samples[second.ID], 1)
}
