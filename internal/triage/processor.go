package triage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"basegraph.app/triage/common"
	"basegraph.app/triage/common/htmltext"
	"basegraph.app/triage/common/logger"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/billing"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/escalation"
	"basegraph.app/triage/internal/model"
	"basegraph.app/triage/internal/note"
	"basegraph.app/triage/internal/notifier"
	"basegraph.app/triage/internal/reply"
	"basegraph.app/triage/internal/sentiment"
	"basegraph.app/triage/internal/service/ticketing"
	"basegraph.app/triage/internal/store"
)

const (
	draftAngerFrom  = 70
	urgentTagFrom   = 70
	maxThreadsItems = 1000
)

// Options tune a single pass.
type Options struct {
	Override Override
}

func (o Options) readOnly(cfg config.TriageConfig) bool {
	return cfg.ReadOnly || o.Override.ReadOnly
}

// Result describes what a pass did to one conversation.
type Result struct {
	ConversationID int64
	Verdict        Verdict
	Outcome        domain.TriageOutcome
	Scoring        *domain.ScoringResult
	Note           string
	NotePublished  bool
	Tags           []string
	Drafted        bool
	Notified       bool
	Err            error
}

// Processor runs one triage pass over one conversation.
type Processor struct {
	cfg      config.TriageConfig
	platform ticketing.Platform
	state    *escalation.StateRepository
	scorer   sentiment.Scorer
	accounts billing.Lookup
	drafter  reply.Drafter
	notify   notifier.Notifier
	runs     store.TriageRunStore
	now      func() time.Time
}

// Deps are the collaborators of a Processor. Accounts, Drafter and Runs may be nil.
type Deps struct {
	Platform ticketing.Platform
	State    *escalation.StateRepository
	Scorer   sentiment.Scorer
	Accounts billing.Lookup
	Drafter  reply.Drafter
	Notifier notifier.Notifier
	Runs     store.TriageRunStore
	Now      func() time.Time
}

func NewProcessor(cfg config.TriageConfig, deps Deps) *Processor {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	notify := deps.Notifier
	if notify == nil {
		notify = notifier.NopNotifier{}
	}
	return &Processor{
		cfg:      cfg,
		platform: deps.Platform,
		state:    deps.State,
		scorer:   deps.Scorer,
		accounts: deps.Accounts,
		drafter:  deps.Drafter,
		notify:   notify,
		runs:     deps.Runs,
		now:      now,
	}
}

// Process analyses conv if its history warrants it. The returned Result is
// always populated; Result.Err mirrors the returned error.
func (p *Processor) Process(ctx context.Context, conv domain.Conversation, opts Options) (Result, error) {
	provider := p.platform.Name()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationID: &conv.ID,
		Provider:       &provider,
		Component:      "triage.processor",
	})

	sc := logger.StartSpan(ctx, "triage.process_conversation")
	defer sc.End()
	ctx = sc.Context()

	res, err := p.process(ctx, conv, opts)
	if err != nil {
		sc.RecordError(err)
		res.Err = err
		slog.ErrorContext(ctx, "triage pass failed", "error", err, "verdict", res.Verdict)
	}
	p.record(ctx, conv, opts, res)
	return res, err
}

func (p *Processor) process(ctx context.Context, conv domain.Conversation, opts Options) (Result, error) {
	res := Result{ConversationID: conv.ID}
	readOnly := opts.readOnly(p.cfg)

	threads, err := p.listThreads(ctx, conv.ID)
	if err != nil {
		return res, classify(fmt.Errorf("listing threads: %w", err))
	}

	prior := p.state.Load(ctx, conv.ID, threads)
	decision := Decide(ctx, Input{Threads: threads, Prior: prior, Override: opts.Override})
	res.Verdict = decision.Verdict

	if decision.Verdict == VerdictSkip {
		res.Outcome = domain.TriageOutcome{Action: domain.TriageActionSkip, Prior: prior}
		slog.DebugContext(ctx, "no new customer messages since last analysis, skipping")
		return res, nil
	}

	text := TextToScore(threads, decision, htmltext.Strip)
	account := p.lookupAccount(ctx, conv.Customer.Email)
	scoreCtx := sentiment.ScoreContext{
		Subject:      conv.Subject,
		CustomerName: conv.Customer.Name,
		Prior:        prior,
	}
	if account != nil {
		scoreCtx.Plan = account.Describe()
	}

	result, err := p.scorer.Score(ctx, text, scoreCtx)
	if err != nil {
		p.publishFailure(ctx, conv.ID, err, readOnly, &res)
		return res, classify(fmt.Errorf("scoring: %w", err))
	}
	res.Scoring = &result

	outcome := Classify(prior, result, p.cfg.EscalationThreshold)
	res.Outcome = outcome

	slog.InfoContext(ctx, "conversation scored",
		"action", outcome.Action,
		"anger", result.AngerScore,
		"urgency", result.UrgencyScore,
		"confidence", result.Confidence,
		"source", result.Source,
		"degraded", result.Degraded,
		"forced", decision.Forced)

	// read-only passes always render; the note is kept on the run record
	if outcome.Action.RendersNote() || readOnly {
		createdAt := p.now().UTC()
		res.Note = note.Render(note.Input{
			Subject: conv.Subject,
			Result:  result,
			Outcome: outcome,
			Marker:  p.state.Codec().Encode(result, createdAt),
		})

		if !readOnly {
			if err := p.platform.PublishNote(ctx, conv.ID, res.Note); err != nil {
				return res, classify(fmt.Errorf("publishing note: %w", err))
			}
			res.NotePublished = true
			p.state.Save(ctx, conv.ID, domain.EscalationMarker{
				AngerScore:    result.AngerScore,
				UrgencyScore:  result.UrgencyScore,
				NoteCreatedAt: createdAt,
				Layout:        domain.MarkerLayoutCurrent,
			})
		}
	} else {
		slog.InfoContext(ctx, "score change below threshold, note suppressed",
			"anger_delta", outcome.Delta.Anger,
			"urgency_delta", outcome.Delta.Urgency)
	}

	if readOnly {
		return res, nil
	}

	res.Tags = p.applyTags(ctx, conv, result, outcome)

	if outcome.Action.RendersNote() {
		res.Drafted = p.draftReply(ctx, conv, text, result, account)
		res.Notified = p.sendAlert(ctx, conv, result, outcome, res.Note)
	}

	return res, nil
}

func (p *Processor) listThreads(ctx context.Context, conversationID int64) ([]domain.Thread, error) {
	fetch := func(ctx context.Context, page, _ int) (crawler.Page[domain.Thread], error) {
		return p.platform.ListThreads(ctx, conversationID, page)
	}
	threads, err := crawler.Crawl(ctx, fetch, crawler.Limits{
		MaxPages: p.cfg.ThreadPageLimit,
		MaxItems: maxThreadsItems,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].CreatedAt.Before(threads[j].CreatedAt)
	})
	return threads, nil
}

func (p *Processor) lookupAccount(ctx context.Context, email string) *billing.Account {
	if p.accounts == nil || email == "" {
		return nil
	}
	account, err := p.accounts.Lookup(ctx, email)
	if err != nil {
		if !errors.Is(err, billing.ErrNotFound) {
			slog.WarnContext(ctx, "billing lookup failed, scoring without plan", "error", err)
		}
		return nil
	}
	return account
}

// publishFailure leaves a note without a marker so the next pass retries.
func (p *Processor) publishFailure(ctx context.Context, conversationID int64, cause error, readOnly bool, res *Result) {
	res.Note = note.RenderFailure(cause)
	if readOnly || ctx.Err() != nil {
		return
	}
	if err := p.platform.PublishNote(ctx, conversationID, res.Note); err != nil {
		slog.ErrorContext(ctx, "failed to publish failure note", "error", err)
		return
	}
	res.NotePublished = true
}

// Tags returns the tags a result earns, without a prefix.
func Tags(result domain.ScoringResult, outcome domain.TriageOutcome) []string {
	var tags []string
	switch note.Classify(result.AngerScore) {
	case note.LevelAngry:
		tags = append(tags, "sentiment-angry")
	case note.LevelFrustrated:
		tags = append(tags, "sentiment-frustrated")
	default:
		tags = append(tags, "sentiment-calm")
	}
	if result.UrgencyScore >= urgentTagFrom {
		tags = append(tags, "urgent")
	}
	if result.Degraded {
		tags = append(tags, "sentiment-degraded")
	}
	if outcome.Action == domain.TriageActionIncrementalEscalated {
		tags = append(tags, "escalated")
	}
	return tags
}

func (p *Processor) applyTags(ctx context.Context, conv domain.Conversation, result domain.ScoringResult, outcome domain.TriageOutcome) []string {
	var applied []string
	for _, name := range Tags(result, outcome) {
		tag, err := common.Tag(p.cfg.TagPrefix, name)
		if err != nil {
			continue
		}
		if conv.HasTag(tag) {
			continue
		}
		if err := p.platform.AddTag(ctx, conv.ID, tag); err != nil {
			slog.WarnContext(ctx, "failed to add tag", "tag", tag, "error", err)
			continue
		}
		applied = append(applied, tag)
	}
	return applied
}

func (p *Processor) draftReply(ctx context.Context, conv domain.Conversation, text string, result domain.ScoringResult, account *billing.Account) bool {
	if !p.cfg.DraftReplies || p.drafter == nil || result.AngerScore < draftAngerFrom {
		return false
	}

	body, err := p.drafter.Draft(ctx, reply.Request{
		Conversation: conv,
		CustomerText: text,
		Result:       result,
		Account:      account,
	})
	if err != nil {
		slog.WarnContext(ctx, "failed to draft reply", "error", err)
		return false
	}

	if err := p.platform.CreateDraftReply(ctx, conv.ID, conv.Customer.ID, body); err != nil {
		if errors.Is(err, ticketing.ErrNotSupported) {
			slog.DebugContext(ctx, "platform does not support draft replies")
		} else {
			slog.WarnContext(ctx, "failed to save draft reply", "error", err)
		}
		return false
	}
	return true
}

func (p *Processor) sendAlert(ctx context.Context, conv domain.Conversation, result domain.ScoringResult, outcome domain.TriageOutcome, body string) bool {
	if outcome.Action != domain.TriageActionIncrementalEscalated && result.Confidence != domain.ConfidenceHigh {
		return false
	}
	alert := notifier.NewAlert(conv, result, outcome.Action, body, conv.URL)
	if err := p.notify.Notify(ctx, alert); err != nil {
		slog.WarnContext(ctx, "failed to send alert", "error", err)
		return false
	}
	return true
}

func (p *Processor) record(ctx context.Context, conv domain.Conversation, opts Options, res Result) {
	if p.runs == nil {
		return
	}

	run := &model.TriageRun{
		ConversationID: conv.ID,
		Provider:       p.platform.Name(),
		Action:         string(res.Outcome.Action),
		Status:         model.TriageRunStatusSucceeded,
		NotePublished:  res.NotePublished,
		Forced:         opts.Override.Effective(),
	}
	if run.Action == "" {
		run.Action = string(res.Verdict)
	}
	if run.Action == "" {
		run.Action = "none"
	}
	switch {
	case res.Err != nil:
		run.Status = model.TriageRunStatusFailed
		run.Error = logger.Ptr(logger.Truncate(res.Err.Error(), 1000))
	case res.Verdict == VerdictSkip:
		run.Status = model.TriageRunStatusSkipped
	}
	if res.Note != "" {
		run.Note = logger.Ptr(res.Note)
	}
	if s := res.Scoring; s != nil {
		run.AngerScore = logger.Ptr(int32(s.AngerScore))
		run.UrgencyScore = logger.Ptr(int32(s.UrgencyScore))
		run.Confidence = logger.Ptr(string(s.Confidence))
		run.Source = logger.Ptr(string(s.Source))
		run.Degraded = s.Degraded
	}

	saved, err := p.runs.Record(ctx, run)
	if err != nil {
		slog.WarnContext(ctx, "failed to record triage run", "error", err)
		return
	}
	slog.DebugContext(ctx, "triage run recorded", "run_id", saved.ID)
}
