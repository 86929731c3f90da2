package geotracking

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/stretchr/testify/require"
)

func TestProximityAlert_PickupLeg(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{
		ID: 1, ClientUserID: 100, CourierID: 7,
		Status:            models.DeliveryStatusAccepted,
		PickupCoordinates: coordsJSON(48.8566, 2.3522),
	})
	notifier := &recNotifier{}
	svc := New(repo, notifier, nil, 0)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	// ~111 м до точки забора — внутри порога 500 м.
	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8576, Longitude: 2.3522, RecordedAt: time.Now().UTC(),
	}))

	alerts := notifier.byType(models.NotificationProximityAlert)
	require.Len(t, alerts, 1)
	require.Equal(t, uint64(100), alerts[0].UserID)
	require.Equal(t, models.PriorityHigh, alerts[0].Priority)

	var payload struct {
		DeliveryID       uint64  `json:"deliveryId"`
		AlertType        string  `json:"alertType"`
		Distance         float64 `json:"distance"`
		EstimatedArrival string  `json:"estimatedArrival"`
	}
	require.NoError(t, json.Unmarshal(alerts[0].Payload, &payload))
	require.Equal(t, uint64(1), payload.DeliveryID)
	require.Equal(t, alertApproachingPickup, payload.AlertType)
	require.InDelta(t, 111.2, payload.Distance, 2)
	_, err = time.Parse(time.RFC3339, payload.EstimatedArrival)
	require.NoError(t, err)
}

func TestProximityAlert_DeliveryLeg(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{
		ID: 1, ClientUserID: 100, CourierID: 7,
		Status:              models.DeliveryStatusInTransit,
		PickupCoordinates:   coordsJSON(48.0, 2.0),
		DeliveryCoordinates: coordsJSON(48.8566, 2.3522),
	})
	notifier := &recNotifier{}
	svc := New(repo, notifier, nil, 0)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8570, Longitude: 2.3522, RecordedAt: time.Now().UTC(),
	}))

	alerts := notifier.byType(models.NotificationProximityAlert)
	require.Len(t, alerts, 1)

	var payload struct {
		AlertType string `json:"alertType"`
	}
	require.NoError(t, json.Unmarshal(alerts[0].Payload, &payload))
	require.Equal(t, alertApproachingDelivery, payload.AlertType)
}

// Повторы не подавляются: каждый сэмпл внутри порога шлёт алерт заново.
func TestProximityAlert_RepeatsPerSample(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{
		ID: 1, ClientUserID: 100, CourierID: 7,
		Status:            models.DeliveryStatusAccepted,
		PickupCoordinates: coordsJSON(48.8566, 2.3522),
	})
	notifier := &recNotifier{}
	svc := New(repo, notifier, nil, 0)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	t0 := time.Now().UTC()
	for i := 0; i < 5; i++ {
		require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
			Latitude: 48.8570, Longitude: 2.3522, RecordedAt: t0.Add(time.Duration(i) * 10 * time.Second),
		}))
	}
	require.Len(t, notifier.byType(models.NotificationProximityAlert), 5)
}

func TestProximityAlert_SkippedCases(t *testing.T) {
	bad := `not json`
	cases := []struct {
		name     string
		delivery models.Delivery
		sample   models.LocationSample
	}{
		{
			name: "too far",
			delivery: models.Delivery{
				ID: 1, ClientUserID: 100, CourierID: 7,
				Status:            models.DeliveryStatusAccepted,
				PickupCoordinates: coordsJSON(48.8566, 2.3522),
			},
			sample: models.LocationSample{Latitude: 48.90, Longitude: 2.3522},
		},
		{
			name: "no coordinates",
			delivery: models.Delivery{
				ID: 1, ClientUserID: 100, CourierID: 7,
				Status: models.DeliveryStatusAccepted,
			},
			sample: models.LocationSample{Latitude: 48.8566, Longitude: 2.3522},
		},
		{
			name: "malformed coordinates",
			delivery: models.Delivery{
				ID: 1, ClientUserID: 100, CourierID: 7,
				Status:            models.DeliveryStatusAccepted,
				PickupCoordinates: &bad,
			},
			sample: models.LocationSample{Latitude: 48.8566, Longitude: 2.3522},
		},
		{
			name: "pickup leg is over",
			delivery: models.Delivery{
				ID: 1, ClientUserID: 100, CourierID: 7,
				Status:            models.DeliveryStatusPickedUp,
				PickupCoordinates: coordsJSON(48.8566, 2.3522),
			},
			sample: models.LocationSample{Latitude: 48.8566, Longitude: 2.3522},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemRepo()
			repo.addDelivery(tc.delivery)
			notifier := &recNotifier{}
			svc := New(repo, notifier, nil, 0)
			ctx := context.Background()

			_, err := svc.StartTracking(ctx, 1, 7)
			require.NoError(t, err)

			s := tc.sample
			s.RecordedAt = time.Now().UTC()
			require.NoError(t, svc.UpdatePosition(ctx, 7, s))
			require.Empty(t, notifier.byType(models.NotificationProximityAlert))
		})
	}
}

func TestWithAlertDistance_TightensThreshold(t *testing.T) {
	repo := newMemRepo()
	repo.addDelivery(models.Delivery{
		ID: 1, ClientUserID: 100, CourierID: 7,
		Status:            models.DeliveryStatusAccepted,
		PickupCoordinates: coordsJSON(48.8566, 2.3522),
	})
	notifier := &recNotifier{}
	svc := New(repo, notifier, nil, 0).WithAlertDistance(50)
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, 1, 7)
	require.NoError(t, err)

	// ~111 м: в дефолтный порог 500 м попадает, в суженный 50 м — нет.
	require.NoError(t, svc.UpdatePosition(ctx, 7, models.LocationSample{
		Latitude: 48.8576, Longitude: 2.3522, RecordedAt: time.Now().UTC(),
	}))
	require.Empty(t, notifier.byType(models.NotificationProximityAlert))
}
