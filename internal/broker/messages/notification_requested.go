package messages

import (
	"encoding/json"
	"time"
)

// NotificationRequested кладётся в топик нотификаций; доставку (push/email,
// ретраи) делает внешний notification-сервис, мы ему только заказываем.
type NotificationRequested struct {
	UserID    uint64          `json:"user_id"`
	Type      string          `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Priority  string          `json:"priority"`
	CreatedAt time.Time       `json:"created_at"`
}
