package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	merco "github.com/SametHaymana/merco-api"
	"github.com/SametHaymana/merco-api/notify"
)

// DeliveryHandler hands queued messages to the real transport. Transport
// errors are returned so asynq retries the task.
type DeliveryHandler struct {
	sender notify.Sender
	logger *slog.Logger
}

func NewDeliveryHandler(sender notify.Sender, logger *slog.Logger) *DeliveryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryHandler{sender: sender, logger: logger}
}

func (h *DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	msg, err := decodeMessage(t)
	if err != nil {
		h.logger.ErrorContext(ctx, "dropping malformed delivery task", "error", err)
		return err
	}

	if err := h.sender.Send(ctx, msg); err != nil {
		retry, _ := asynq.GetRetryCount(ctx)
		h.logger.WarnContext(ctx, "delivery attempt failed",
			"channel", msg.Channel, "purpose", msg.Purpose, "tenant_id", msg.TenantID, "retry", retry, "error", err)
		return fmt.Errorf("deliver %s: %w", msg.Channel, err)
	}
	return nil
}

// Sweeper is the cleanup surface of merco.Engine.
type Sweeper interface {
	Sweep(ctx context.Context) (merco.SweepReport, error)
}

type SweepHandler struct {
	sweeper Sweeper
	logger  *slog.Logger
}

func NewSweepHandler(s Sweeper, logger *slog.Logger) *SweepHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepHandler{sweeper: s, logger: logger}
}

func (h *SweepHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	h.logger.DebugContext(ctx, "sweep task finished", "sessions", report.Sessions, "tokens", report.Tokens)
	return nil
}

// NewServeMux registers every task type. A nil sweeper leaves TypeSweep
// unhandled.
func NewServeMux(sender notify.Sender, sweeper Sweeper, logger *slog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeDeliver, NewDeliveryHandler(sender, logger))
	if sweeper != nil {
		mux.Handle(TypeSweep, NewSweepHandler(sweeper, logger))
	}
	return mux
}
