package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

// DefaultQueue is the queue notifications are published to.
const DefaultQueue = "certificate.notifications"

// Publisher is the subset of *amqp.Channel used to publish.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher enqueues notifications as persistent JSON messages.
type AMQPPublisher struct {
	channel    Publisher
	exchange   string
	routingKey string
	log        *slog.Logger
}

// NewAMQPPublisher publishes to routingKey on exchange. With the default
// exchange the routing key is the queue name.
func NewAMQPPublisher(channel Publisher, exchange, routingKey string, log *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		channel:    channel,
		exchange:   exchange,
		routingKey: routingKey,
		log:        log,
	}
}

func (p *AMQPPublisher) Notify(ctx context.Context, notification interfaces.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
		MessageId:    notification.TransactionHash,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.log.Debug("Published notification",
		slog.String("routing_key", p.routingKey),
		slog.String("tx_hash", notification.TransactionHash))
	return nil
}

// Dial connects to RabbitMQ, retrying with exponential waits as the broker
// often starts after the services that use it.
func Dial(ctx context.Context, url string, attempts int, log *slog.Logger) (*amqp.Connection, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = time.Second
	expBackoff.MaxElapsedTime = 0

	var attempt int
	policy := backoff.WithContext(backoff.WithMaxRetries(expBackoff, uint64(max(attempts-1, 0))), ctx)
	conn, err := backoff.RetryNotifyWithData(func() (*amqp.Connection, error) {
		attempt++
		return amqp.Dial(url)
	}, policy, func(err error, next time.Duration) {
		log.Warn("RabbitMQ connection failed", slog.Int("attempt", attempt), slog.Duration("retry_in", next), "err", err)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareQueue declares a durable notification queue.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// Consume hands every delivery to notifier until ctx is done or the channel
// closes. Delivered messages are acked; a failed delivery is requeued once and
// dropped when it fails again. Malformed messages are dropped.
func Consume(ctx context.Context, deliveries <-chan amqp.Delivery, notifier interfaces.Notifier, log *slog.Logger) error {
	log.Info("Waiting for notifications")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handleDelivery(ctx, d, notifier, log)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, notifier interfaces.Notifier, log *slog.Logger) {
	var notification interfaces.Notification
	if err := json.Unmarshal(d.Body, &notification); err != nil {
		log.Error("Dropping malformed notification", slog.String("message_id", d.MessageId), "err", err)
		if err := d.Reject(false); err != nil {
			log.Warn("Failed to reject notification", "err", err)
		}
		return
	}

	if err := notifier.Notify(ctx, notification); err != nil {
		requeue := !d.Redelivered
		log.Error("Failed to deliver notification",
			slog.String("tx_hash", notification.TransactionHash),
			slog.Bool("requeue", requeue),
			"err", err)
		if err := d.Nack(false, requeue); err != nil {
			log.Warn("Failed to nack notification", "err", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		log.Warn("Failed to ack notification", "err", err)
	}
}
