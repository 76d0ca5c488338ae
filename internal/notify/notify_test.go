package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/events"
	"github.com/MotionAge/sn-sub000/internal/notify"
)

func event(topic string, payload map[string]any) events.Event {
	raw, _ := json.Marshal(payload)
	return events.Event{
		ID:          "ev-1",
		Topic:       topic,
		AggregateID: "agg-1",
		Payload:     raw,
		OccurredAt:  time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEmailNotifierTypeSpecificMessages(t *testing.T) {
	mail := &common.InMemoryEmail{}
	n := notify.EmailNotifier{Mail: mail, Enabled: true, OrgName: "Samiti"}

	require.NoError(t, n.Notify(context.Background(), event(events.TopicDonationCompleted, map[string]any{
		"email":         "donor@example.org",
		"name":          "Test <Donor>",
		"amount":        "5000",
		"currency":      "NPR",
		"receiptNumber": "RCP-D-2024-1",
		"receiptUrl":    "https://files.example.org/receipts/donation-RCP-D-2024-1.pdf",
	})))
	require.NoError(t, n.Notify(context.Background(), event(events.TopicPaymentSucceeded, map[string]any{
		"email":         "donor@example.org",
		"orderId":       "E1",
		"transactionId": "TXN1",
	})))

	out := mail.Outbox()
	require.Len(t, out, 2)
	require.Equal(t, "donor@example.org", out[0].To)
	require.Equal(t, "Samiti: Thank you for your donation", out[0].Subject)
	require.Contains(t, out[0].HTML, "RCP-D-2024-1")
	require.Contains(t, out[0].HTML, "NPR 5000")
	require.Contains(t, out[0].HTML, "Test &lt;Donor&gt;")
	require.Contains(t, out[0].HTML, `href="https://files.example.org/receipts/donation-RCP-D-2024-1.pdf"`)
	require.Equal(t, "Samiti: Payment received", out[1].Subject)
	require.Contains(t, out[1].HTML, "TXN1")
}

func TestEmailNotifierSkips(t *testing.T) {
	mail := &common.InMemoryEmail{}

	n := notify.EmailNotifier{Mail: mail, Enabled: false}
	require.NoError(t, n.Notify(context.Background(), event(events.TopicPaymentSucceeded, map[string]any{"email": "a@b.c"})))

	n = notify.EmailNotifier{Mail: mail, Enabled: true}
	require.NoError(t, n.Notify(context.Background(), event(events.TopicPaymentSucceeded, map[string]any{"orderId": "E1"})))

	n = notify.EmailNotifier{Mail: mail, Enabled: true, TopicToggles: map[string]bool{events.TopicPaymentFailed: false}}
	require.NoError(t, n.Notify(context.Background(), event(events.TopicPaymentFailed, map[string]any{"email": "a@b.c"})))

	require.Empty(t, mail.Outbox())

	bad := events.Event{Topic: events.TopicPaymentSucceeded, Payload: []byte("{")}
	require.Error(t, notify.EmailNotifier{Mail: mail, Enabled: true}.Notify(context.Background(), bad))
}

type recordingDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *recordingDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	return d.err
}

func TestSMTPMailer(t *testing.T) {
	require.Nil(t, notify.NewSMTPMailer(config.SMTPConfig{}))
	m := notify.NewSMTPMailer(config.SMTPConfig{Host: "smtp.example.org", Port: 587, Username: "user@example.org"})
	require.NotNil(t, m)
	require.Equal(t, "user@example.org", m.From)

	d := &recordingDialer{}
	m.Dialer = d
	require.NoError(t, m.Send(context.Background(), common.EmailMessage{To: "a@example.org", Subject: "Hi", HTML: "<p>x</p>"}))
	require.Len(t, d.sent, 1)
	require.Equal(t, []string{"a@example.org"}, d.sent[0].GetHeader("To"))
	require.Equal(t, []string{"Hi"}, d.sent[0].GetHeader("Subject"))

	d.err = errors.New("connection refused")
	require.Error(t, m.Send(context.Background(), common.EmailMessage{To: "a@example.org"}))
	require.Error(t, m.Send(context.Background(), common.EmailMessage{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Send(ctx, common.EmailMessage{To: "a@example.org"}), context.Canceled)
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &recordingWriter{}
	p := notify.KafkaPublisher{Writer: w}
	require.NoError(t, p.Notify(context.Background(), event(events.TopicMembershipActivated, map[string]any{"certificateNumber": "CERT-M-1"})))

	require.Len(t, w.msgs, 1)
	require.Equal(t, "agg-1", string(w.msgs[0].Key))
	require.Equal(t, "event-topic", w.msgs[0].Headers[0].Key)
	require.Equal(t, events.TopicMembershipActivated, string(w.msgs[0].Headers[0].Value))

	var env map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	require.Equal(t, "ev-1", env["id"])
	require.Equal(t, "CERT-M-1", env["payload"].(map[string]any)["certificateNumber"])

	w.err = errors.New("leader not available")
	require.Error(t, p.Notify(context.Background(), event(events.TopicPaymentSucceeded, nil)))

	require.NoError(t, notify.KafkaPublisher{}.Notify(context.Background(), event(events.TopicPaymentSucceeded, nil)))
	require.Nil(t, notify.NewKafkaWriter(config.KafkaConfig{}))
}
