package common

import (
	"context"
	"sync"
)

// EmailMessage is a single outbound email with an HTML body.
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender defines the contract for sending emails.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// InMemoryEmail provides a test-friendly email sender that records messages.
type InMemoryEmail struct {
	mu     sync.Mutex
	outbox []EmailMessage
}

// Send records the email in memory.
func (m *InMemoryEmail) Send(_ context.Context, msg EmailMessage) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	m.outbox = append(m.outbox, msg)
	m.mu.Unlock()
	return nil
}

// Outbox returns a copy of the recorded messages.
func (m *InMemoryEmail) Outbox() []EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailMessage, len(m.outbox))
	copy(out, m.outbox)
	return out
}

// NopEmailSender implements EmailSender without performing any action.
type NopEmailSender struct{}

// Send implements EmailSender.
func (NopEmailSender) Send(context.Context, EmailMessage) error { return nil }
