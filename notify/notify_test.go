package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"

	"github.com/ruteri/certificate-trust-backend/interfaces"
)

var testNotification = interfaces.Notification{
	Email:           "ada@example.com",
	Name:            "Ada Lovelace",
	TransactionHash: "0x" + strings.Repeat("1f", 32),
	VerificationURL: "https://verify.example.com/verify/sepolia/0x" + strings.Repeat("1f", 32),
	Attachments: []interfaces.Attachment{
		{Filename: "diploma.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 diploma")},
	},
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, notification interfaces.Notification) error {
	return m.Called(ctx, notification).Error(0)
}

func TestMulti(t *testing.T) {
	ok := &mockNotifier{}
	ok.On("Notify", mock.Anything, testNotification).Return(nil)
	failing := &mockNotifier{}
	failing.On("Notify", mock.Anything, testNotification).Return(errors.New("unreachable"))

	err := Multi{failing, ok, NewLogNotifier(testLogger())}.Notify(context.Background(), testNotification)
	assert.EqualError(t, err, "unreachable")
	ok.AssertExpectations(t)

	assert.NoError(t, NewInstrumented("log", Multi{ok}).Notify(context.Background(), testNotification))
}

type fakePublisher struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	p.exchange, p.key, p.msg = exchange, key, msg
	return p.err
}

func TestAMQPPublisher(t *testing.T) {
	publisher := &fakePublisher{}
	notifier := NewAMQPPublisher(publisher, "", DefaultQueue, testLogger())

	require.NoError(t, notifier.Notify(context.Background(), testNotification))
	assert.Equal(t, "", publisher.exchange)
	assert.Equal(t, DefaultQueue, publisher.key)
	assert.Equal(t, "application/json", publisher.msg.ContentType)
	assert.Equal(t, amqp.Persistent, publisher.msg.DeliveryMode)

	var decoded interfaces.Notification
	require.NoError(t, json.Unmarshal(publisher.msg.Body, &decoded))
	assert.Equal(t, testNotification, decoded)

	publisher.err = amqp.ErrClosed
	assert.ErrorIs(t, notifier.Notify(context.Background(), testNotification), amqp.ErrClosed)
}

// recordingAcknowledger implements amqp.Acknowledger.
type recordingAcknowledger struct {
	mu      sync.Mutex
	acked   []uint64
	nacked  map[uint64]bool
	rejects []uint64
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacked[tag] = requeue
	return nil
}

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects = append(a.rejects, tag)
	return nil
}

func TestConsume(t *testing.T) {
	body, err := json.Marshal(testNotification)
	require.NoError(t, err)
	failingBody, err := json.Marshal(interfaces.Notification{Email: "bounce@example.com"})
	require.NoError(t, err)

	notifier := &mockNotifier{}
	notifier.On("Notify", mock.Anything, testNotification).Return(nil)
	notifier.On("Notify", mock.Anything, interfaces.Notification{Email: "bounce@example.com"}).Return(errors.New("mailbox full"))

	ack := &recordingAcknowledger{nacked: make(map[uint64]bool)}
	deliveries := make(chan amqp.Delivery, 4)
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: body}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: failingBody}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: failingBody, Redelivered: true}
	deliveries <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 4, Body: []byte("{not json")}
	close(deliveries)

	err = Consume(context.Background(), deliveries, notifier, testLogger())
	assert.Error(t, err)

	assert.Equal(t, []uint64{1}, ack.acked)
	assert.Equal(t, map[uint64]bool{2: true, 3: false}, ack.nacked)
	assert.Equal(t, []uint64{4}, ack.rejects)
	notifier.AssertNumberOfCalls(t, "Notify", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Consume(ctx, make(chan amqp.Delivery), notifier, testLogger()), context.Canceled)
}

func TestMailer(t *testing.T) {
	mailer, err := NewMailer(MailerConfig{
		Addr:     "smtp.example.com:587",
		Username: "certificates",
		Password: "secret",
		From:     "Registrar <registrar@university.example>",
	}, testLogger())
	require.NoError(t, err)
	mailer.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	var sent []*gomail.Msg
	mailer.send = func(_ context.Context, messages ...*gomail.Msg) error {
		sent = append(sent, messages...)
		return nil
	}

	require.NoError(t, mailer.Notify(context.Background(), testNotification))
	require.Len(t, sent, 1)

	sender, err := sent[0].GetSender(false)
	require.NoError(t, err)
	assert.Equal(t, "registrar@university.example", sender)
	recipients, err := sent[0].GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ada@example.com"}, recipients)

	var raw bytes.Buffer
	_, err = sent[0].WriteTo(&raw)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(&raw)
	require.NoError(t, err)
	assert.Contains(t, msg.Header.Get("To"), "ada@example.com")
	date, err := msg.Header.Date()
	require.NoError(t, err)
	assert.True(t, date.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(msg.Body, params["boundary"])

	text, err := reader.NextPart()
	require.NoError(t, err)
	content, err := io.ReadAll(text)
	require.NoError(t, err)
	assert.Contains(t, string(content), testNotification.VerificationURL)

	files := map[string][]byte{}
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		encoded, err := io.ReadAll(part)
		require.NoError(t, err)
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(encoded), "\r\n", ""))
		require.NoError(t, err)
		files[part.FileName()] = decoded
	}

	require.Contains(t, files, qrFilename)
	assert.True(t, bytes.HasPrefix(files[qrFilename], []byte("\x89PNG")))
	assert.Equal(t, []byte("%PDF-1.4 diploma"), files["diploma.pdf"])

	mailer.send = func(context.Context, ...*gomail.Msg) error { return errors.New("421 try later") }
	assert.Error(t, mailer.Notify(context.Background(), testNotification))

	assert.Error(t, mailer.Notify(context.Background(), interfaces.Notification{Email: "not an address"}))

	_, err = NewMailer(MailerConfig{Addr: "smtp.example.com", From: "registrar@university.example"}, testLogger())
	assert.Error(t, err)
	_, err = NewMailer(MailerConfig{Addr: "smtp.example.com:587", From: "nobody"}, testLogger())
	assert.Error(t, err)
}
