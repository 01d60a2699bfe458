// Package notify delivers issuance notifications to students.
//
// The HTTP server usually publishes notifications to a RabbitMQ queue with
// AMQPPublisher, and a separate notifier process consumes the queue and sends
// email with Mailer. For local development LogNotifier just logs.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ruteri/certificate-trust-backend/interfaces"
	"github.com/ruteri/certificate-trust-backend/metrics"
)

// LogNotifier logs notifications instead of delivering them.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notification interfaces.Notification) error {
	n.log.Info("Certificate issued",
		slog.String("email", notification.Email),
		slog.String("name", notification.Name),
		slog.String("tx_hash", notification.TransactionHash),
		slog.String("verification_url", notification.VerificationURL),
		slog.Int("attachments", len(notification.Attachments)))
	return nil
}

// Instrumented counts delivery outcomes of the wrapped notifier.
type Instrumented struct {
	name     string
	notifier interfaces.Notifier
}

func NewInstrumented(name string, notifier interfaces.Notifier) *Instrumented {
	return &Instrumented{name: name, notifier: notifier}
}

func (n *Instrumented) Notify(ctx context.Context, notification interfaces.Notification) error {
	err := n.notifier.Notify(ctx, notification)
	metrics.Notifications.WithLabelValues(n.name, metrics.Outcome(err)).Inc()
	return err
}

// Multi delivers to every notifier and joins their errors.
type Multi []interfaces.Notifier

func (m Multi) Notify(ctx context.Context, notification interfaces.Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
