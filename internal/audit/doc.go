// Package audit relays security-relevant events to pluggable sinks.
//
// [Dispatcher] decouples emission from delivery with a bounded buffer. It
// stamps each event with a UTC time and a sortable event id, counts drops per
// event type and keeps relaying when a sink panics. Sinks cover a channel for
// tests, newline-delimited JSON and structured slog records. The package does
// not decide which events to emit; the engine does.
package audit
