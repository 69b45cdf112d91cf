// Package app assembles the triage pipeline from configuration. The worker
// and the CLI share it so both run identical passes.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/triage/common/llm"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/core/db"
	"basegraph.app/triage/internal/billing"
	"basegraph.app/triage/internal/docs"
	"basegraph.app/triage/internal/escalation"
	"basegraph.app/triage/internal/lock"
	"basegraph.app/triage/internal/notifier"
	"basegraph.app/triage/internal/reply"
	"basegraph.app/triage/internal/sentiment"
	"basegraph.app/triage/internal/service/ticketing"
	"basegraph.app/triage/internal/store"
	"basegraph.app/triage/internal/triage"
)

// Resources are the long-lived connections a Pipeline is built on. Redis and
// DB may be nil; the pipeline then runs without the marker cache, locking
// and run history.
type Resources struct {
	Redis *redis.Client
	DB    *db.DB
}

type Pipeline struct {
	Platform  ticketing.Platform
	Scorer    sentiment.Scorer
	State     *escalation.StateRepository
	Processor *triage.Processor
	Runner    *triage.Runner
	Runs      store.TriageRunStore

	closers []func()
}

// Close releases connections the pipeline opened itself.
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func NewPipeline(ctx context.Context, cfg config.Config, res Resources) (*Pipeline, error) {
	p := &Pipeline{}

	platform, err := ticketing.NewPlatform(cfg.Ticketing)
	if err != nil {
		return nil, fmt.Errorf("creating ticketing client: %w", err)
	}
	p.Platform = platform

	var llmClient llm.Client
	if cfg.LLM.Enabled() {
		llmClient, err = llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("creating llm client: %w", err)
		}
	}

	p.Scorer, err = sentiment.NewScorer(cfg.Scoring, llmClient, cfg.LLM.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("creating scorer: %w", err)
	}

	var markers escalation.MarkerStore
	if res.Redis != nil {
		markers = escalation.NewRedisMarkerStore(res.Redis, cfg.Pipeline.StatePrefix, cfg.Pipeline.StateTTL)
	}
	p.State = escalation.NewStateRepository(escalation.NewTextCodec(), markers)

	deps := triage.Deps{
		Platform: platform,
		State:    p.State,
		Scorer:   p.Scorer,
		Notifier: notifier.New(cfg.Notifier),
	}

	if res.DB != nil {
		p.Runs = store.NewStores(res.DB.Querier()).TriageRuns()
		deps.Runs = p.Runs
	}

	if cfg.Billing.Enabled() {
		replica, err := db.NewReadOnly(ctx, cfg.Billing.DSN)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("connecting to billing replica: %w", err)
		}
		p.closers = append(p.closers, replica.Close)
		deps.Accounts = billing.NewService(replica.Querier())
	}

	if cfg.Triage.DraftReplies && llmClient != nil {
		var searcher docs.Searcher
		if cfg.Docs.Enabled() {
			searcher = docs.NewCachedSearcher(
				docs.NewTypesenseSearcher(cfg.Docs),
				docs.NewTTLCache[[]docs.Article](cfg.Docs.CacheTTL),
			)
		}
		deps.Drafter = reply.NewAIDrafter(llmClient, searcher, cfg.LLM.MaxTokens)
	} else if cfg.Triage.DraftReplies {
		slog.WarnContext(ctx, "draft replies enabled without an llm client, drafting disabled")
	}

	p.Processor = triage.NewProcessor(cfg.Triage, deps)

	var locker triage.Locker
	if res.Redis != nil {
		locker = lock.NewConversationLock(res.Redis, cfg.Pipeline.StatePrefix, cfg.Pipeline.LockTTL)
	}
	p.Runner = triage.NewRunner(cfg.Triage, platform, p.Processor, locker)

	slog.InfoContext(ctx, "triage pipeline ready",
		"provider", platform.Name(),
		"scoring", cfg.Scoring.Strategy,
		"billing", deps.Accounts != nil,
		"drafting", deps.Drafter != nil,
		"notifier", cfg.Notifier.Enabled(),
		"read_only", cfg.Triage.ReadOnly)

	return p, nil
}
