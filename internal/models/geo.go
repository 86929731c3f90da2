package models

import (
	"encoding/json"
	"time"
)

// Статусы доставки (владеет ими внешний сервис заказов, мы только читаем).
const (
	DeliveryStatusAccepted  = "ACCEPTED"
	DeliveryStatusPickedUp  = "PICKED_UP"
	DeliveryStatusInTransit = "IN_TRANSIT"
	DeliveryStatusDelivered = "DELIVERED"
	DeliveryStatusCancelled = "CANCELLED"
)

const (
	GeofenceTypePickup      = "PICKUP"
	GeofenceTypeDelivery    = "DELIVERY"
	GeofenceTypeStorage     = "STORAGE"
	GeofenceTypeServiceArea = "SERVICE_AREA"
)

type Delivery struct {
	ID           uint64
	ClientUserID uint64
	CourierID    uint64
	Status       string
	// Сериализованные координаты вида {"lat":48.85,"lng":2.35}; могут отсутствовать
	// или быть битыми — парсим через ParseCoordinates и молча пропускаем проверку.
	PickupCoordinates   *string
	DeliveryCoordinates *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type TrackingSession struct {
	ID         uint64
	DeliveryID uint64
	CourierID  uint64
	StartedAt  time.Time
	EndedAt    *time.Time
	Active     bool
	// Метры и км/ч. TotalDistance/AvgSpeed на живой сессии — скользящие оценки,
	// финальные значения пересчитываются из полной истории при остановке.
	TotalDistanceM float64
	AvgSpeedKmh    float64
	MaxSpeedKmh    *float64
	LastSeenAt     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type LocationSample struct {
	ID          uint64
	SessionID   uint64
	Latitude    float64
	Longitude   float64
	AccuracyM   float64
	SpeedKmh    *float64
	HeadingDeg  *float64
	AltitudeM   *float64
	RecordedAt  time.Time
	CreatedAt   time.Time
}

type GeofenceZone struct {
	ID        uint64
	Name      string
	Type      string
	Latitude  float64
	Longitude float64
	RadiusM   float64
	Active    bool
}

type GeofenceEntry struct {
	ID         uint64
	SessionID  uint64
	GeofenceID uint64
	Inside     bool
	Latitude   float64
	Longitude  float64
	RecordedAt time.Time
	CreatedAt  time.Time
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ParseCoordinates разбирает сериализованную пару координат из записи доставки.
// nil/пустая строка/битый JSON/нулевая компонента — это "координат нет", не
// ошибка: точки с lat=0 или lng=0 в наших зонах не встречаются, зато часто
// означают незаполненное поле.
func ParseCoordinates(raw *string) (Coordinates, bool) {
	if raw == nil || *raw == "" {
		return Coordinates{}, false
	}
	var c Coordinates
	if err := json.Unmarshal([]byte(*raw), &c); err != nil {
		return Coordinates{}, false
	}
	if c.Lat == 0 || c.Lng == 0 {
		return Coordinates{}, false
	}
	return c, true
}

const (
	NotificationTrackingStarted = "TRACKING_STARTED"
	NotificationTrackingEnded   = "TRACKING_ENDED"
	NotificationProximityAlert  = "PROXIMITY_ALERT"
	NotificationGeofenceAlert   = "GEOFENCE_ALERT"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Notification struct {
	UserID   uint64
	Type     string
	Title    string
	Message  string
	Payload  json.RawMessage
	Priority string
}
