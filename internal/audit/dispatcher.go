package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SametHaymana/merco-api/internal/ids"
)

// MetaEventID is the metadata key carrying the sortable event identifier.
const MetaEventID = "event_id"

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool `env:"ENABLED" envDefault:"true"`
	BufferSize int  `env:"BUFFER_SIZE" envDefault:"1024"`
	DropIfFull bool `env:"DROP_IF_FULL" envDefault:"true"`
}

// Stats counts what happened to events handed to a Dispatcher.
type Stats struct {
	Delivered  uint64
	Dropped    uint64
	SinkPanics uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDropHook runs fn for every event discarded because the buffer was full.
// fn runs on the caller's goroutine and must not block.
func WithDropHook(fn func(Event)) Option {
	return func(d *Dispatcher) { d.onDrop = fn }
}

// WithLogger sets the logger used to report sink panics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock sets the time source used to stamp events that carry none.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher stamps audit events and relays them to a sink on a single
// goroutine so request paths never wait on audit I/O. A nil *Dispatcher is a
// valid no-op.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	onDrop func(Event)
	logger *slog.Logger
	now    func() time.Time

	ch   chan Event
	done chan struct{}
	wg   sync.WaitGroup

	delivered  atomic.Uint64
	dropped    atomic.Uint64
	sinkPanics atomic.Uint64

	mu     sync.Mutex
	byType map[Type]uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the relay goroutine. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink, opts ...Option) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: slog.Default(),
		now:    time.Now,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
		byType: make(map[Type]uint64),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.ch:
			d.deliver(event)
		case <-d.done:
			for {
				select {
				case event := <-d.ch:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

// deliver keeps the relay alive when a sink panics; the event is lost.
func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
			d.logger.Error("audit sink panicked",
				slog.String("type", string(event.Type)),
				slog.String("event_id", event.Metadata[MetaEventID]),
				slog.Any("panic", r),
			)
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// stamp fills the timestamp and event id when the caller left them empty.
// Metadata is copied before it is written so callers may reuse their map.
func (d *Dispatcher) stamp(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now()
	}
	event.Timestamp = event.Timestamp.UTC()

	if event.Metadata[MetaEventID] != "" {
		return event
	}
	meta := make(map[string]string, len(event.Metadata)+1)
	for k, v := range event.Metadata {
		meta[k] = v
	}
	meta[MetaEventID] = ids.At(event.Timestamp)
	event.Metadata = meta
	return event
}

// Emit stamps and queues event. With DropIfFull it never blocks; otherwise it
// waits for buffer space or ctx cancellation.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event = d.stamp(event)

	if d.cfg.DropIfFull {
		select {
		case d.ch <- event:
		case <-d.done:
		default:
			d.drop(event)
		}
		return
	}

	select {
	case d.ch <- event:
	case <-ctx.Done():
		d.drop(event)
	case <-d.done:
	}
}

func (d *Dispatcher) drop(event Event) {
	d.dropped.Add(1)
	d.mu.Lock()
	d.byType[event.Type]++
	d.mu.Unlock()
	if d.onDrop != nil {
		d.onDrop(event)
	}
}

// Close stops accepting events and drains what is buffered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType copies the per-type drop counts.
func (d *Dispatcher) DroppedByType() map[Type]uint64 {
	out := make(map[Type]uint64)
	if d == nil {
		return out
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range d.byType {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered:  d.delivered.Load(),
		Dropped:    d.dropped.Load(),
		SinkPanics: d.sinkPanics.Load(),
	}
}
