package geotracking

import (
	"context"

	"github.com/EcoDeli/GeoTrack/internal/geo"
	"github.com/EcoDeli/GeoTrack/internal/models"
)

// finalizeStats пересчитывает статистику закрытой сессии из полной истории:
// попарные расстояния, средняя скорость по суммарному времени, максимум из
// скоростей устройства. Меньше двух сэмплов — пересчитывать не из чего,
// скользящие значения остаются как есть.
func (s *Service) finalizeStats(ctx context.Context, session *models.TrackingSession) error {
	samples, err := s.repo.ListSessionSamples(ctx, session.ID)
	if err != nil {
		return err
	}
	if len(samples) < 2 {
		return nil
	}

	totalM, avgKmh, maxKmh := computeFinalStats(samples)
	if err := s.repo.FinalizeSessionStats(ctx, session.ID, totalM, avgKmh, maxKmh); err != nil {
		return err
	}

	session.TotalDistanceM = totalM
	session.AvgSpeedKmh = avgKmh
	session.MaxSpeedKmh = maxKmh
	return nil
}

func computeFinalStats(samples []*models.LocationSample) (totalM, avgKmh float64, maxKmh *float64) {
	var totalHours float64
	for i := 1; i < len(samples); i++ {
		prev, curr := samples[i-1], samples[i]
		totalM += geo.Distance(prev.Latitude, prev.Longitude, curr.Latitude, curr.Longitude)
		if h := curr.RecordedAt.Sub(prev.RecordedAt).Hours(); h > 0 {
			totalHours += h
		}
	}
	if totalHours > 0 {
		avgKmh = totalM / 1000 / totalHours
	}

	for _, ls := range samples {
		if ls.SpeedKmh == nil {
			continue
		}
		if maxKmh == nil || *ls.SpeedKmh > *maxKmh {
			v := *ls.SpeedKmh
			maxKmh = &v
		}
	}
	return totalM, avgKmh, maxKmh
}
