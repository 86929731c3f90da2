// Package geo содержит чистую сферическую геометрию: никакого состояния,
// никаких ошибок, только math.
package geo

import (
	"math"
	"time"
)

const (
	earthRadiusKm = 6371

	// Средняя городская скорость курьера, когда устройство не прислало свою.
	DefaultSpeedKmh = 30
)

// Distance считает расстояние между двумя точками по формуле гаверсинуса.
// Возвращает метры. Симметрична и равна нулю для совпадающих точек.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000
}

// EstimateArrival прикидывает время прибытия из текущей точки в целевую при
// заданной скорости. speedKmh <= 0 трактуем как "скорость неизвестна" и берём
// DefaultSpeedKmh, чтобы не получить отрицательное или бесконечное ETA.
func EstimateArrival(lat1, lon1, lat2, lon2, speedKmh float64, now time.Time) time.Time {
	if speedKmh <= 0 {
		speedKmh = DefaultSpeedKmh
	}
	distanceKm := Distance(lat1, lon1, lat2, lon2) / 1000
	travel := time.Duration(distanceKm / speedKmh * float64(time.Hour))
	return now.Add(travel)
}

func toRadians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
