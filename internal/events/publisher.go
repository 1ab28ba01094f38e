// Package events publishes request lifecycle events to an AMQP topic
// exchange. Publishing is best-effort: a broker outage is logged and
// otherwise invisible to the request path.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys for the lifecycle events this service emits.
const (
	KeyRequestSubmitted = "request.submitted"
	KeyReplyRecorded    = "reply.recorded"
	KeyRequestDeleted   = "request.deleted"
)

// Envelope wraps every published event.
type Envelope struct {
	ID         string    `json:"id"`
	Key        string    `json:"key"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type Publisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger
}

// New dials the broker and declares a durable topic exchange.
func New(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(
		exchange, "topic", true, false, false, false, nil,
	); err != nil {
		conn.Close()
		return nil, err
	}

	return &Publisher{
		conn:     conn,
		exchange: exchange,
		log:      logger,
	}, nil
}

// Publish emits a single event. Safe on a nil publisher (events not
// configured). Errors are logged and swallowed.
func (p *Publisher) Publish(ctx context.Context, key string, payload any) {
	if p == nil || p.conn == nil {
		return
	}

	ch, err := p.conn.Channel()
	if err != nil {
		p.log.Warn("events: open channel", slog.String("key", key), slog.Any("error", err))
		return
	}
	defer ch.Close()

	env := Envelope{
		ID:         uuid.NewString(),
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
	body, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("events: marshal envelope", slog.String("key", key), slog.Any("error", err))
		return
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, key, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    env.ID,
			Timestamp:    env.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.log.Warn("events: publish", slog.String("key", key), slog.Any("error", err))
		return
	}
	p.log.Info("published", slog.String("key", key), slog.String("exchange", p.exchange))
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
