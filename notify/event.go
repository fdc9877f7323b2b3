package notify

import (
	"context"
	"time"
)

// Type names an outbound event.
type Type string

const (
	TypeVerificationRequested  Type = "auth.verification_requested"
	TypePasswordResetRequested Type = "auth.password_reset_requested"
	TypeWelcome                Type = "auth.welcome"
	TypeTwoFactorEnabled       Type = "auth.two_factor_enabled"
	TypeAccountLocked          Type = "auth.account_locked"
	TypePasswordChanged        Type = "auth.password_changed"
)

// Event is the payload handed to sinks. Token carries the plaintext
// verification or reset token for the email collaborator and is never
// logged.
type Event struct {
	Type        Type       `json:"type"`
	AccountID   string     `json:"account_id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name,omitempty"`
	Token       string     `json:"token,omitempty"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// Sink delivers one event.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Deliver(context.Context, Event) error { return nil }

// ChannelSink writes events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Deliver(ctx context.Context, event Event) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
