package worker

import (
	"context"
	"fmt"
	"log/slog"

	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/queue"
	"basegraph.app/triage/internal/triage"
)

// TaskRunner maps queue tasks onto triage passes.
type TaskRunner struct {
	runner TriageRunner
}

func NewTaskRunner(runner TriageRunner) *TaskRunner {
	return &TaskRunner{runner: runner}
}

func (r *TaskRunner) HandleTask(ctx context.Context, task queue.Task) error {
	switch task.TaskType {
	case queue.TaskTypeTriageConversation:
		// A forced task is a read-only reanalysis whose note lands only on the
		// triage run record. The runner drops the force flag for conversations
		// that are not closed.
		override := triage.Override{Force: task.Force, ReadOnly: task.Force, ClosedOnly: task.Force}
		res, err := r.runner.ProcessConversation(ctx, task.ConversationID, triage.Options{Override: override})
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "conversation task done",
			"verdict", res.Verdict,
			"action", res.Outcome.Action,
			"note_published", res.NotePublished)
		return nil

	case queue.TaskTypeCrawl:
		summary, err := r.runner.Run(ctx, triage.RunOptions{Status: domain.ConversationStatus(task.Status)})
		if err != nil {
			// the next scheduled crawl picks up whatever this one missed
			slog.WarnContext(ctx, "crawl finished with errors", "error", err, "listed", summary.Listed)
		}
		return nil

	default:
		return triage.NewFatalError(fmt.Errorf("unknown task type %q", task.TaskType))
	}
}
