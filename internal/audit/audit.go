package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Type names a security-relevant action.
type Type string

const (
	TypeSignUp               Type = "auth.sign_up"
	TypeSignIn               Type = "auth.sign_in"
	TypeSignOut              Type = "auth.sign_out"
	TypeSignOutAll           Type = "auth.sign_out_all"
	TypeRefresh              Type = "auth.refresh"
	TypeOTPSent              Type = "auth.otp_sent"
	TypeOTPVerified          Type = "auth.otp_verified"
	TypeMagicLinkSent        Type = "auth.magic_link_sent"
	TypeMagicLinkVerified    Type = "auth.magic_link_verified"
	TypePasswordResetRequest Type = "account.password_reset_requested"
	TypePasswordReset        Type = "account.password_reset"
	TypePasswordChanged      Type = "account.password_changed"
	TypeBanned               Type = "account.banned"
	TypeUnbanned             Type = "account.unbanned"
	TypeMFAEnrolled          Type = "mfa.enrolled"
	TypeMFADisabled          Type = "mfa.disabled"
	TypeAPIKeyCreated        Type = "api_key.created"
	TypeAPIKeyRevoked        Type = "api_key.revoked"
	TypeAPIKeyUsed           Type = "api_key.used"
	TypeRoleAssigned         Type = "role.assigned"
	TypeRoleUnassigned       Type = "role.unassigned"
	TypePermissionDenied     Type = "authz.denied"
	TypeRateLimited          Type = "admission.rate_limited"
)

// Event is one audit record. Secrets never appear in Metadata.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      Type              `json:"type"`
	TenantID  string            `json:"tenant_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	IP        string            `json:"ip,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
}

// SlogSink logs each event as a structured record. Failed events log at warn.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(ctx context.Context, event Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("type", string(event.Type)),
		slog.Time("at", event.Timestamp),
		slog.Bool("success", event.Success),
	}
	if event.TenantID != "" {
		attrs = append(attrs, slog.String("tenant_id", event.TenantID))
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}
	if event.IP != "" {
		attrs = append(attrs, slog.String("ip", event.IP))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		attrs = append(attrs, slog.String("meta."+k, v))
	}
	logger.LogAttrs(ctx, level, "audit", attrs...)
}

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}
