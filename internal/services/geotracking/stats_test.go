package geotracking

import (
	"context"
	"testing"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestComputeFinalStats(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v1, v2 := 12.5, 38.0
	samples := []*models.LocationSample{
		{Latitude: 48.8566, Longitude: 2.3522, RecordedAt: t0, SpeedKmh: &v1},
		{Latitude: 48.8576, Longitude: 2.3522, RecordedAt: t0.Add(time.Minute)},
		{Latitude: 48.8586, Longitude: 2.3522, RecordedAt: t0.Add(2 * time.Minute), SpeedKmh: &v2},
	}

	totalM, avgKmh, maxKmh := computeFinalStats(samples)
	require.InDelta(t, 222.4, totalM, 2)
	require.InDelta(t, 6.67, avgKmh, 0.2)
	require.NotNil(t, maxKmh)
	require.Equal(t, 38.0, *maxKmh)
}

func TestComputeFinalStats_NoDeviceSpeeds(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []*models.LocationSample{
		{Latitude: 48.8566, Longitude: 2.3522, RecordedAt: t0},
		{Latitude: 48.8576, Longitude: 2.3522, RecordedAt: t0.Add(time.Minute)},
	}

	_, _, maxKmh := computeFinalStats(samples)
	require.Nil(t, maxKmh)
}

func TestComputeFinalStats_DuplicateTimestamps(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	samples := []*models.LocationSample{
		{Latitude: 48.8566, Longitude: 2.3522, RecordedAt: t0},
		{Latitude: 48.8576, Longitude: 2.3522, RecordedAt: t0},
	}

	// Дистанция есть, времени не прошло: средняя скорость остаётся нулевой,
	// деления на ноль нет.
	totalM, avgKmh, _ := computeFinalStats(samples)
	require.Greater(t, totalM, 0.0)
	require.Zero(t, avgKmh)
}

func TestFinalize_SkipsSessionsWithFewSamples(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{ID: 1, ClientUserID: 100, CourierID: 7, Status: models.DeliveryStatusPickedUp})
	svc := New(repo, nil, nil, 0)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)
	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8566, Longitude: 2.3522, RecordedAt: time.Now().UTC(),
	}))

	session, err := svc.StopTracking(ctx, 1, 7)
	require.NoError(t, err)

	// Один сэмпл — пересчитывать не из чего, скользящие значения не трогаем.
	require.Zero(t, session.TotalDistanceM)
	require.Zero(t, session.AvgSpeedKmh)
	require.Nil(t, session.MaxSpeedKmh)
}
