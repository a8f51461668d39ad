package jobs

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// NewScheduler enqueues a sweep every interval.
func NewScheduler(opt asynq.RedisConnOpt, interval time.Duration) (*asynq.Scheduler, error) {
	if interval < time.Minute {
		return nil, fmt.Errorf("sweep interval must be at least 1m, got %s", interval)
	}
	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := s.Register(CronSpec(interval), NewSweepTask()); err != nil {
		return nil, fmt.Errorf("register sweep: %w", err)
	}
	return s, nil
}

// CronSpec renders interval in the "@every" form asynq's cron parser accepts.
func CronSpec(interval time.Duration) string {
	return "@every " + interval.Truncate(time.Second).String()
}
