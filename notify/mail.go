package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/wneessen/go-mail"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

const qrFilename = "verification-qr.png"

// MailerConfig configures the SMTP mailer.
type MailerConfig struct {
	// Addr is the SMTP server as host:port.
	Addr     string
	Username string
	Password string
	From     string
}

// SendFunc delivers composed messages. It matches mail.Client.DialAndSendWithContext.
type SendFunc func(ctx context.Context, messages ...*mail.Msg) error

// Mailer emails the student a link to the public verification page, a QR code
// of the same link and the issued document.
type Mailer struct {
	cfg  MailerConfig
	send SendFunc
	now  func() time.Time
	log  *slog.Logger
}

func NewMailer(cfg MailerConfig, log *slog.Logger) (*Mailer, error) {
	if err := mail.NewMsg().From(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP address %q: %w", cfg.Addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP port %q: %w", portStr, err)
	}

	opts := []mail.Option{
		mail.WithPort(port),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password))
	}
	client, err := mail.NewClient(host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP client: %w", err)
	}

	return &Mailer{
		cfg:  cfg,
		send: client.DialAndSendWithContext,
		now:  time.Now,
		log:  log,
	}, nil
}

func (m *Mailer) Notify(ctx context.Context, notification interfaces.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := m.compose(notification)
	if err != nil {
		return err
	}

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	m.log.Info("Sent certificate email",
		slog.String("tx_hash", notification.TransactionHash),
		slog.Int("attachments", len(notification.Attachments)))
	return nil
}

func (m *Mailer) compose(notification interfaces.Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.AddToFormat(notification.Name, notification.Email); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject("Your certificate has been issued")
	msg.SetDateWithValue(m.now())

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\r\n\r\n", notification.Name)
	fmt.Fprintf(&body, "Your certificate has been recorded on the blockchain.\r\n")
	fmt.Fprintf(&body, "Transaction: %s\r\n\r\n", notification.TransactionHash)
	fmt.Fprintf(&body, "Anyone can verify it at:\r\n%s\r\n\r\n", notification.VerificationURL)
	fmt.Fprintf(&body, "The attached QR code links to the same page.\r\n")
	msg.SetBodyString(mail.TypeTextPlain, body.String())

	qr, err := qrcode.Encode(notification.VerificationURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	attachments := append([]interfaces.Attachment{{Filename: qrFilename, ContentType: "image/png", Data: qr}}, notification.Attachments...)
	for _, attachment := range attachments {
		contentType := attachment.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		err := msg.AttachReader(attachment.Filename, bytes.NewReader(attachment.Data),
			mail.WithFileContentType(mail.ContentType(contentType)))
		if err != nil {
			return nil, fmt.Errorf("failed to attach %s: %w", attachment.Filename, err)
		}
	}

	return msg, nil
}
