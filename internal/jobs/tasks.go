// Package jobs moves notification delivery and periodic cleanup onto an
// asynq queue backed by Redis.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/SametHaymana/merco-api/notify"
)

// Task types.
const (
	TypeDeliver = "merco:notify:deliver"
	TypeSweep   = "merco:maintenance:sweep"
)

// Queue names and their relative weights on the worker.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

// Queues is the weight map cmd/merco-worker passes to asynq.Config.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
}

const (
	deliverMaxRetry = 5
	deliverTimeout  = 30 * time.Second
	// Codes expire in minutes; retrying past that only delivers dead codes.
	deliverRetention = 15 * time.Minute

	sweepTimeout = 5 * time.Minute
)

// NewDeliverTask wraps msg for the delivery worker.
func NewDeliverTask(msg notify.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return asynq.NewTask(TypeDeliver, data,
		asynq.Queue(QueueCritical),
		asynq.MaxRetry(deliverMaxRetry),
		asynq.Timeout(deliverTimeout),
		asynq.Deadline(time.Now().Add(deliverRetention)),
	), nil
}

// NewSweepTask builds the periodic cleanup task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(0),
		asynq.Timeout(sweepTimeout),
	)
}

func decodeMessage(t *asynq.Task) (notify.Message, error) {
	var msg notify.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return notify.Message{}, fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if msg.To == "" || msg.Channel == "" {
		return notify.Message{}, fmt.Errorf("message without recipient or channel: %w", asynq.SkipRetry)
	}
	return msg, nil
}
