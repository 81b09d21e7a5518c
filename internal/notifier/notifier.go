// Package notifier publishes coordinator events to RabbitMQ.  The broker is
// a fire-and-forget sink for the external push/notification system: publish
// failures are logged and swallowed so a dead broker never blocks a booking.
package notifier

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/classfit/gym-class-reservation/internal/queue"
)

// AMQPNotifier implements booking.Notifier against a RabbitMQ broker.  Each
// publish dials a short-lived connection; booking volume in a gym does not
// justify connection pooling.
type AMQPNotifier struct {
	url string
	log *zap.Logger
}

// New returns a notifier that publishes to the broker at url.
func New(url string, log *zap.Logger) *AMQPNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPNotifier{url: url, log: log}
}

// PromotionOffered publishes a promotion offer event.
func (n *AMQPNotifier) PromotionOffered(ctx context.Context, ev queue.PromotionOfferedEvent) {
	n.publish(ctx, queue.PromotionOfferedQueue, ev)
}

// ReservationConfirmed publishes a confirmed-seat event.
func (n *AMQPNotifier) ReservationConfirmed(ctx context.Context, ev queue.ReservationConfirmedEvent) {
	n.publish(ctx, queue.ReservationConfirmedQueue, ev)
}

func (n *AMQPNotifier) publish(ctx context.Context, queueName string, payload any) {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		n.log.Warn("notifier: dial broker failed", zap.String("queue", queueName), zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		n.log.Warn("notifier: open channel failed", zap.String("queue", queueName), zap.Error(err))
		return
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so events survive broker restarts.
	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		n.log.Warn("notifier: queue declare failed", zap.String("queue", queueName), zap.Error(err))
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn("notifier: marshal event failed", zap.String("queue", queueName), zap.Error(err))
		return
	}

	err = ch.PublishWithContext(ctx,
		"",        // default exchange
		queueName, // routing key = queue name
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		n.log.Warn("notifier: publish failed", zap.String("queue", queueName), zap.Error(err))
		return
	}
	n.log.Debug("notifier: event published", zap.String("queue", queueName))
}
