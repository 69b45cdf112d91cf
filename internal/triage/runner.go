package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/lock"
	"basegraph.app/triage/internal/service/ticketing"
)

// Locker guarantees at most one pass per conversation is in flight.
type Locker interface {
	Acquire(ctx context.Context, conversationID int64) (release func(), err error)
}

type RunOptions struct {
	Status   domain.ConversationStatus
	Override Override
}

// Summary counts what a crawl pass did.
type Summary struct {
	Listed    int
	Initial   int
	Escalated int
	Stable    int
	Skipped   int
	Locked    int
	Failed    int
}

func (s *Summary) add(res Result) {
	if res.Err != nil {
		s.Failed++
		return
	}
	switch res.Outcome.Action {
	case domain.TriageActionInitial:
		s.Initial++
	case domain.TriageActionIncrementalEscalated:
		s.Escalated++
	case domain.TriageActionIncrementalStable:
		s.Stable++
	default:
		s.Skipped++
	}
}

type Runner struct {
	cfg       config.TriageConfig
	platform  ticketing.Platform
	processor *Processor
	locker    Locker
}

func NewRunner(cfg config.TriageConfig, platform ticketing.Platform, processor *Processor, locker Locker) *Runner {
	return &Runner{cfg: cfg, platform: platform, processor: processor, locker: locker}
}

// Run crawls conversations and processes them one at a time. A failure on one
// conversation is counted and the pass continues. A listing failure still
// processes whatever was listed before it and is returned at the end.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (Summary, error) {
	var summary Summary

	status := opts.Status
	if opts.Override.ClosedOnly {
		status = domain.ConversationStatusClosed
	}
	if status == "" {
		status = domain.ConversationStatus(r.cfg.ListStatus)
	}

	provider := r.platform.Name()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Provider:  &provider,
		Component: "triage.runner",
	})

	sc := logger.StartSpan(ctx, "triage.run")
	defer sc.End()
	ctx = sc.Context()

	fetch := func(ctx context.Context, page, pageSize int) (crawler.Page[domain.Conversation], error) {
		return r.platform.ListConversations(ctx, ticketing.ListParams{Status: status, Page: page, PageSize: pageSize})
	}
	convs, listErr := crawler.Crawl(ctx, fetch, crawler.Limits{
		PageSize: r.cfg.PageSize,
		MaxPages: r.cfg.MaxPages,
		MaxItems: r.cfg.MaxItems,
	})
	summary.Listed = len(convs)
	if listErr != nil {
		sc.RecordError(listErr)
		slog.WarnContext(ctx, "conversation listing incomplete", "error", listErr, "listed", len(convs))
	}

	slog.InfoContext(ctx, "triage pass started", "status", status, "conversations", len(convs))

	for _, conv := range convs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if opts.Override.ClosedOnly && conv.Status != domain.ConversationStatusClosed {
			summary.Skipped++
			continue
		}

		res, err := r.processLocked(ctx, conv, Options{Override: opts.Override})
		switch {
		case errors.Is(err, lock.ErrLockHeld):
			summary.Locked++
		case err != nil && res.ConversationID == 0:
			summary.Failed++
		default:
			summary.add(res)
		}
	}

	slog.InfoContext(ctx, "triage pass finished",
		"listed", summary.Listed,
		"initial", summary.Initial,
		"escalated", summary.Escalated,
		"stable", summary.Stable,
		"skipped", summary.Skipped,
		"locked", summary.Locked,
		"failed", summary.Failed)

	if listErr != nil {
		return summary, fmt.Errorf("listing conversations: %w", listErr)
	}
	return summary, nil
}

// ProcessConversation handles one conversation, e.g. from a webhook task.
// A conversation already being processed elsewhere is not an error.
func (r *Runner) ProcessConversation(ctx context.Context, conversationID int64, opts Options) (Result, error) {
	conv, err := r.platform.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ticketing.ErrNotFound) {
			return Result{}, NewFatalError(fmt.Errorf("conversation %d: %w", conversationID, ErrConversationNotFound))
		}
		return Result{}, classify(fmt.Errorf("fetching conversation: %w", err))
	}
	if opts.Override.ClosedOnly && conv.Status != domain.ConversationStatusClosed {
		opts.Override.Force = false
	}

	res, err := r.processLocked(ctx, *conv, opts)
	if errors.Is(err, lock.ErrLockHeld) {
		slog.InfoContext(ctx, "conversation already being triaged, skipping", "conversation_id", conversationID)
		return Result{ConversationID: conversationID, Verdict: VerdictSkip}, nil
	}
	return res, err
}

func (r *Runner) processLocked(ctx context.Context, conv domain.Conversation, opts Options) (Result, error) {
	if r.locker != nil {
		release, err := r.locker.Acquire(ctx, conv.ID)
		if err != nil {
			if !errors.Is(err, lock.ErrLockHeld) {
				slog.WarnContext(ctx, "failed to acquire conversation lock", "conversation_id", conv.ID, "error", err)
				err = NewRetryableError(err)
			}
			return Result{}, err
		}
		defer release()
	}
	return r.processor.Process(ctx, conv, opts)
}
