package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/SametHaymana/merco-api/notify"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client is a notify.Sender that enqueues messages instead of delivering
// them. The worker's DeliveryHandler performs the actual send with retries.
type Client struct {
	queue  enqueuer
	logger *slog.Logger
}

// NewClient connects to the Redis behind opt.
func NewClient(opt asynq.RedisConnOpt, logger *slog.Logger) *Client {
	return newClient(asynq.NewClient(opt), logger)
}

// NewClientFromRedis shares an existing go-redis client. Close does not close it.
func NewClientFromRedis(rdb redis.UniversalClient, logger *slog.Logger) *Client {
	return newClient(asynq.NewClientFromRedisClient(rdb), logger)
}

func newClient(q enqueuer, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{queue: q, logger: logger}
}

// Send enqueues msg. An enqueue failure is reported as notify.ErrDelivery.
func (c *Client) Send(ctx context.Context, msg notify.Message) error {
	task, err := NewDeliverTask(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", notify.ErrDelivery, err)
	}
	info, err := c.queue.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("%w: enqueue: %v", notify.ErrDelivery, err)
	}
	c.logger.DebugContext(ctx, "delivery enqueued",
		"task_id", info.ID, "queue", info.Queue, "channel", msg.Channel, "purpose", msg.Purpose, "tenant_id", msg.TenantID)
	return nil
}

func (c *Client) Close() error {
	return c.queue.Close()
}
