// Package service holds the business flows that span several repositories
// or talk to external systems: payment checkout, session issuance,
// password reset, poster storage, event publishing and periodic cleanup.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	q "github.com/iliyamo/smartbooking/internal/queue"
)

// EventPublisher emits domain events. Callers treat failures as
// non-fatal: the request that triggered the event still succeeds.
type EventPublisher interface {
	PublishReservationConfirmed(ctx context.Context, event q.ReservationConfirmedEvent) error
	PublishPasswordReset(ctx context.Context, event q.PasswordResetEvent) error
}

// publishDialTimeout bounds connection setup so an unreachable broker does
// not hold up the request that emits the event.
const publishDialTimeout = 2 * time.Second

// Publisher publishes JSON events to RabbitMQ, dialing per message.
type Publisher struct {
	url         string
	log         *zap.Logger
	dialTimeout time.Duration
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log.Named("publisher"), dialTimeout: publishDialTimeout}
}

// PublishReservationConfirmed publishes to the reservation.confirmed queue.
func (p *Publisher) PublishReservationConfirmed(ctx context.Context, event q.ReservationConfirmedEvent) error {
	return p.publish(ctx, q.ReservationConfirmedQueue, event)
}

// PublishPasswordReset publishes to the password.reset queue.
func (p *Publisher) PublishPasswordReset(ctx context.Context, event q.PasswordResetEvent) error {
	return p.publish(ctx, q.PasswordResetQueue, event)
}

// publish never panics; every error is logged and returned so the caller
// can choose to ignore it. Messages are persistent.
func (p *Publisher) publish(ctx context.Context, queue string, event any) error {
	log := p.log.With(zap.String("queue", queue))

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Locale: "en_US",
		Dial:   amqp.DefaultDial(p.dialTimeout),
	})
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		log.Error("marshal event failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		log.Warn("publish failed", zap.Error(err))
		return err
	}
	log.Debug("event published", zap.Int("bytes", len(body)))
	return nil
}
