package merco

import (
	"io"
	"log/slog"

	"github.com/SametHaymana/merco-api/internal/audit"
)

// AuditEvent is one security-relevant record emitted by the Engine.
type AuditEvent = audit.Event

// AuditEventType names the action an AuditEvent records.
type AuditEventType = audit.Type

// AuditSink receives audit events from the Engine's dispatcher goroutine.
type AuditSink = audit.Sink

// NewJSONAuditSink writes newline-delimited JSON events to w.
func NewJSONAuditSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogAuditSink logs events through logger.
func NewSlogAuditSink(logger *slog.Logger) AuditSink {
	return audit.SlogSink{Logger: logger}
}

// NewChannelAuditSink buffers events in a channel; tests read them back.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}
