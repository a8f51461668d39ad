package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{Type: TypeSignIn, Success: true})
	}
	d.Close()

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
	d.Emit(context.Background(), Event{Type: TypeSignIn})
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher should report zero drops")
	}
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	entered chan struct{}
}

func (b *blockingSink) Emit(context.Context, Event) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), entered: make(chan struct{})}
	var drops atomic.Int32
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink,
		WithDropHook(func(Event) { drops.Add(1) }))

	d.Emit(context.Background(), Event{Type: TypeSignIn})
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the first event")
	}
	// One event fills the buffer; the next two are dropped.
	d.Emit(context.Background(), Event{Type: TypeSignIn})
	d.Emit(context.Background(), Event{Type: TypeSignIn})
	d.Emit(context.Background(), Event{Type: TypeOTPSent})

	if d.Dropped() != 2 || drops.Load() != 2 {
		t.Fatalf("expected 2 drops, got %d / %d", d.Dropped(), drops.Load())
	}
	byType := d.DroppedByType()
	if byType[TypeSignIn] != 1 || byType[TypeOTPSent] != 1 {
		t.Fatalf("unexpected per-type drops %v", byType)
	}
	close(sink.release)
	d.Close()
	if st := d.Stats(); st.Delivered != 2 || st.Dropped != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestDispatcherStampsEvents(t *testing.T) {
	sink := NewChannelSink(4)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3*3600))
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, WithClock(func() time.Time { return at }))

	meta := map[string]string{"method": "password"}
	d.Emit(context.Background(), Event{Type: TypeSignIn, Metadata: meta})
	d.Emit(context.Background(), Event{Type: TypeSignOut, Metadata: map[string]string{MetaEventID: "fixed"}})
	d.Close()

	first := <-sink.Events()
	if !first.Timestamp.Equal(at) || first.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC clock stamp, got %v", first.Timestamp)
	}
	if first.Metadata[MetaEventID] == "" || first.Metadata["method"] != "password" {
		t.Fatalf("unexpected metadata %v", first.Metadata)
	}
	if _, ok := meta[MetaEventID]; ok {
		t.Fatal("caller metadata map was modified")
	}
	if second := <-sink.Events(); second.Metadata[MetaEventID] != "fixed" {
		t.Fatalf("existing event id replaced: %v", second.Metadata)
	}
}

type panickySink struct {
	delivered atomic.Int32
}

func (p *panickySink) Emit(_ context.Context, ev Event) {
	if ev.Type == TypeBanned {
		panic("sink failure")
	}
	p.delivered.Add(1)
}

func TestDispatcherSurvivesSinkPanic(t *testing.T) {
	sink := &panickySink{}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink, WithLogger(logger))

	d.Emit(context.Background(), Event{Type: TypeSignIn})
	d.Emit(context.Background(), Event{Type: TypeBanned})
	d.Emit(context.Background(), Event{Type: TypeSignIn})
	d.Close()

	if sink.delivered.Load() != 2 {
		t.Fatalf("relay stopped after panic, delivered %d", sink.delivered.Load())
	}
	if st := d.Stats(); st.SinkPanics != 1 || st.Delivered != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if !strings.Contains(buf.String(), "audit sink panicked") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestDispatcherBlockingDropsOnCancel(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), entered: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	d.Emit(context.Background(), Event{Type: TypeSignIn})
	<-sink.entered
	d.Emit(context.Background(), Event{Type: TypeSignIn})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Type: TypeRefresh})
	if d.DroppedByType()[TypeRefresh] != 1 {
		t.Fatalf("expected cancelled emit counted as drop, got %v", d.DroppedByType())
	}
	close(sink.release)
	d.Close()
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{Type: TypeAPIKeyCreated, TenantID: "T", Success: true})

	line := strings.TrimSpace(buf.String())
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != TypeAPIKeyCreated || got.TenantID != "T" {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	s := SlogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	s.Emit(context.Background(), Event{Type: TypeSignIn, Success: false, Error: "invalid_credentials", TenantID: "T"})
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"error":"invalid_credentials"`) {
		t.Fatalf("unexpected record %s", out)
	}

	buf.Reset()
	MultiSink{nil, s}.Emit(context.Background(), Event{Type: TypeSignIn, Success: true})
	if !strings.Contains(buf.String(), `"level":"INFO"`) {
		t.Fatalf("expected info record, got %s", buf.String())
	}
}
