package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StartOfferConsumer connects to RabbitMQ and drains the promotion-offer
// queue into logs/notifications.log, one line per offer.  It stands in for
// the real push-delivery system during development and doubles as an audit
// trail.  The function runs a reconnect loop forever; transient broker
// failures are logged, bad messages are rejected without requeue, and the
// server keeps serving either way.
func StartOfferConsumer(url string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("offer-consumer: dial broker failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeOffers(conn, log); err != nil {
			log.Warn("offer-consumer: consume loop ended", zap.Error(err))
			_ = conn.Close()
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeOffers(conn *amqp.Connection, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("offer-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(PromotionOfferedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PromotionOfferedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := recordOffer(d.Body); err != nil {
			log.Warn("offer-consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false) // drop, do not requeue bad payloads
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func recordOffer(body []byte) error {
	var ev PromotionOfferedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join("logs", "notifications.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Seat offered | reservation_id=%d | user_id=%d | class_id=%d | class=%q | confirm_by=%s | token=%s\n",
		ev.PromotedAt, ev.ReservationID, ev.UserID, ev.ClassID, ev.ClassTitle, ev.ExpiresAt, ev.OfferToken)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
