package worker

import (
	"context"
	"log/slog"
	"time"

	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/internal/queue"
)

// Scheduler enqueues a crawl task on a fixed interval. Workers pick the task
// from the stream, so only one of them runs each crawl.
type Scheduler struct {
	producer queue.Producer
	interval time.Duration
	status   string
}

func NewScheduler(producer queue.Producer, interval time.Duration, status string) *Scheduler {
	return &Scheduler{producer: producer, interval: interval, status: status}
}

// Run enqueues once immediately, then on every tick until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "triage.worker.scheduler",
	})

	if s.interval <= 0 {
		slog.InfoContext(ctx, "crawl scheduler disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "crawl scheduler started", "interval", s.interval, "status", s.status)
	s.enqueue(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.enqueue(ctx)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context) {
	err := s.producer.Enqueue(ctx, queue.Task{
		TaskType: queue.TaskTypeCrawl,
		Status:   s.status,
		Source:   "scheduler",
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to enqueue crawl", "error", err)
	}
}
