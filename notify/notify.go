// Package notify delivers one-time codes and links over email or SMS.
//
// The core treats delivery as a boundary: it builds a [Message] and calls
// [Sender.Send] once. Failures surface as [ErrDelivery] and are never retried
// by the caller; asynchronous retry belongs to the job queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrDelivery is returned when a message could not be handed to its transport.
var ErrDelivery = errors.New("notify: delivery failed")

// Channel selects the transport.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Purpose tags what a message carries.
type Purpose string

const (
	PurposeOTP           Purpose = "otp"
	PurposeMagicLink     Purpose = "magic_link"
	PurposePasswordReset Purpose = "password_reset"
)

// Message is one outbound notification.
type Message struct {
	Channel  Channel `json:"channel"`
	To       string  `json:"to"`
	Subject  string  `json:"subject,omitempty"`
	Body     string  `json:"body"`
	Purpose  Purpose `json:"purpose"`
	TenantID string  `json:"tenant_id"`
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Router dispatches by channel. A channel with no sender fails with ErrDelivery.
type Router struct {
	Email Sender
	SMS   Sender
}

// Send forwards msg to the sender registered for its channel.
func (r Router) Send(ctx context.Context, msg Message) error {
	var s Sender
	switch msg.Channel {
	case ChannelEmail:
		s = r.Email
	case ChannelSMS:
		s = r.SMS
	}
	if s == nil {
		return fmt.Errorf("%w: no sender for channel %q", ErrDelivery, msg.Channel)
	}
	return s.Send(ctx, msg)
}

// LogSender writes messages to a structured logger instead of delivering them.
// Development servers use it so that codes are visible in the console.
type LogSender struct {
	Logger *slog.Logger
}

// Send logs msg at info level.
func (s LogSender) Send(ctx context.Context, msg Message) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "notification",
		"channel", msg.Channel,
		"to", msg.To,
		"purpose", msg.Purpose,
		"tenant_id", msg.TenantID,
		"subject", msg.Subject,
		"body", msg.Body,
	)
	return nil
}
