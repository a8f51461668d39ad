package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	tasks  []*asynq.Task
	err    error
	closed bool
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueCritical, Type: task.Type()}, nil
}

func (q *fakeQueue) Close() error {
	q.closed = true
	return nil
}

var otpMessage = notify.Message{
	Channel:  notify.ChannelEmail,
	To:       "a@b.com",
	Subject:  "Your verification code",
	Body:     "Your verification code is 123456.",
	Purpose:  notify.PurposeOTP,
	TenantID: "T",
}

func TestClientEnqueuesDeliverTask(t *testing.T) {
	q := &fakeQueue{}
	c := newClient(q, discardLogger())

	if err := c.Send(context.Background(), otpMessage); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(q.tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(q.tasks))
	}
	if q.tasks[0].Type() != TypeDeliver {
		t.Fatalf("unexpected task type %q", q.tasks[0].Type())
	}

	got, err := decodeMessage(q.tasks[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != otpMessage {
		t.Fatalf("payload mismatch: %+v", got)
	}

	if err := c.Close(); err != nil || !q.closed {
		t.Fatalf("close: %v closed=%v", err, q.closed)
	}
}

func TestClientEnqueueFailureIsDeliveryError(t *testing.T) {
	c := newClient(&fakeQueue{err: errors.New("redis down")}, discardLogger())

	err := c.Send(context.Background(), otpMessage)
	if !errors.Is(err, notify.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
}

func TestDeliveryHandler(t *testing.T) {
	var delivered []notify.Message
	sender := notify.SenderFunc(func(_ context.Context, msg notify.Message) error {
		delivered = append(delivered, msg)
		return nil
	})
	h := NewDeliveryHandler(sender, discardLogger())

	task, err := NewDeliverTask(otpMessage)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(delivered) != 1 || delivered[0] != otpMessage {
		t.Fatalf("unexpected deliveries %+v", delivered)
	}
}

func TestDeliveryHandlerRetriesTransportErrors(t *testing.T) {
	transportErr := errors.New("smtp: 421 try later")
	h := NewDeliveryHandler(notify.SenderFunc(func(context.Context, notify.Message) error {
		return transportErr
	}), discardLogger())

	task, _ := NewDeliverTask(otpMessage)
	err := h.ProcessTask(context.Background(), task)
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if errors.Is(err, asynq.SkipRetry) {
		t.Fatal("transport errors must be retried")
	}
}

func TestDeliveryHandlerSkipsMalformedPayload(t *testing.T) {
	h := NewDeliveryHandler(notify.SenderFunc(func(context.Context, notify.Message) error {
		t.Fatal("sender must not be called")
		return nil
	}), discardLogger())

	for _, payload := range [][]byte{[]byte("{"), []byte(`{"body":"x"}`)} {
		err := h.ProcessTask(context.Background(), asynq.NewTask(TypeDeliver, payload))
		if !errors.Is(err, asynq.SkipRetry) {
			t.Fatalf("payload %q: expected SkipRetry, got %v", payload, err)
		}
	}
}

type fakeSweeper struct {
	calls  int
	report merco.SweepReport
	err    error
}

func (s *fakeSweeper) Sweep(context.Context) (merco.SweepReport, error) {
	s.calls++
	return s.report, s.err
}

func TestSweepHandler(t *testing.T) {
	s := &fakeSweeper{report: merco.SweepReport{Sessions: 3, Tokens: 7}}
	h := NewSweepHandler(s, discardLogger())

	if err := h.ProcessTask(context.Background(), NewSweepTask()); err != nil {
		t.Fatalf("process: %v", err)
	}
	if s.calls != 1 {
		t.Fatalf("expected 1 sweep, got %d", s.calls)
	}

	s.err = errors.New("store unavailable")
	if err := h.ProcessTask(context.Background(), NewSweepTask()); !errors.Is(err, s.err) {
		t.Fatalf("expected sweep error, got %v", err)
	}
}

func TestServeMuxRoutesTaskTypes(t *testing.T) {
	var delivered int
	sender := notify.SenderFunc(func(context.Context, notify.Message) error {
		delivered++
		return nil
	})
	sweeper := &fakeSweeper{}
	mux := NewServeMux(sender, sweeper, discardLogger())

	task, _ := NewDeliverTask(otpMessage)
	if err := mux.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if err := mux.ProcessTask(context.Background(), NewSweepTask()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if delivered != 1 || sweeper.calls != 1 {
		t.Fatalf("delivered=%d sweeps=%d", delivered, sweeper.calls)
	}
}

func TestCronSpec(t *testing.T) {
	cases := map[time.Duration]string{
		5 * time.Minute:                       "@every 5m0s",
		time.Hour:                             "@every 1h0m0s",
		90*time.Second + 500*time.Millisecond: "@every 1m30s",
	}
	for in, want := range cases {
		if got := CronSpec(in); got != want {
			t.Fatalf("CronSpec(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestNewSchedulerRejectsShortInterval(t *testing.T) {
	if _, err := NewScheduler(asynq.RedisClientOpt{Addr: "127.0.0.1:0"}, 10*time.Second); err == nil {
		t.Fatal("expected error for sub-minute interval")
	}
}
