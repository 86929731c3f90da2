package messages

import "time"

// PositionReported — сырой сэмпл с устройства курьера, приходит из шлюза
// мобильных клиентов через Kafka.
type PositionReported struct {
	CourierID  uint64    `json:"courier_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	AccuracyM  float64   `json:"accuracy_m"`
	RecordedAt time.Time `json:"recorded_at"`

	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	HeadingDeg *float64 `json:"heading_deg,omitempty"`
	AltitudeM  *float64 `json:"altitude_m,omitempty"`
}
