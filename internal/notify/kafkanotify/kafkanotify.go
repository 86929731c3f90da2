// Package kafkanotify заказывает нотификации через Kafka: сообщение в топик,
// дальше — забота notification-сервиса.
package kafkanotify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/EcoDeli/GeoTrack/internal/broker/messages"
	"github.com/EcoDeli/GeoTrack/internal/models"
	"github.com/pkg/errors"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Dispatcher struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Dispatcher {
	return &Dispatcher{producer: producer, topic: topic}
}

func (d *Dispatcher) Notify(ctx context.Context, n models.Notification) error {
	msg := messages.NotificationRequested{
		UserID:    n.UserID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Payload:   n.Payload,
		Priority:  n.Priority,
		CreatedAt: time.Now().UTC(),
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}

	// Ключ — userId: нотификации одного получателя идут в одну партицию и
	// сохраняют порядок.
	key := []byte(fmt.Sprintf("%d", n.UserID))
	return d.producer.Publish(ctx, d.topic, key, b)
}
