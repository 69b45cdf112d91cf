package worker

import (
	"context"

	"basegraph.app/triage/internal/queue"
	"basegraph.app/triage/internal/triage"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// TaskHandler executes one decoded task.
type TaskHandler interface {
	HandleTask(ctx context.Context, task queue.Task) error
}

// TriageRunner abstracts triage.Runner for testability.
type TriageRunner interface {
	Run(ctx context.Context, opts triage.RunOptions) (triage.Summary, error)
	ProcessConversation(ctx context.Context, conversationID int64, opts triage.Options) (triage.Result, error)
}
