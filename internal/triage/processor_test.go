package triage_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/escalation"
	"basegraph.app/triage/internal/model"
	"basegraph.app/triage/internal/reply"
	"basegraph.app/triage/internal/sentiment"
	"basegraph.app/triage/internal/service/ticketing"
	"basegraph.app/triage/internal/triage"
)

type scorerFunc func(ctx context.Context, text string, sc sentiment.ScoreContext) (domain.ScoringResult, error)

func (f scorerFunc) Score(ctx context.Context, text string, sc sentiment.ScoreContext) (domain.ScoringResult, error) {
	return f(ctx, text, sc)
}

const angryText = "This is the worst, you people are incompetent idiots. I want a refund now!!!!"

var _ = Describe("Processor", func() {
	var (
		ctx      context.Context
		cfg      config.TriageConfig
		platform *mockPlatform
		notify   *mockNotifier
		runs     *mockRunStore
		codec    escalation.TextCodec
		scorer   sentiment.Scorer
		drafter  reply.Drafter
		now      time.Time
		conv     domain.Conversation
	)

	newProcessor := func() *triage.Processor {
		return triage.NewProcessor(cfg, triage.Deps{
			Platform: platform,
			State:    escalation.NewStateRepository(codec, nil),
			Scorer:   scorer,
			Drafter:  drafter,
			Notifier: notify,
			Runs:     runs,
			Now:      func() time.Time { return now },
		})
	}

	markerNote := func(anger, urgency int, at time.Time) domain.Thread {
		body := "previous analysis\n" + codec.Encode(domain.ScoringResult{AngerScore: anger, UrgencyScore: urgency}, at)
		return internalNote(body, at)
	}

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.TriageConfig{EscalationThreshold: 20, ThreadPageLimit: 5}
		platform = newMockPlatform()
		notify = &mockNotifier{}
		runs = &mockRunStore{}
		codec = escalation.NewTextCodec()
		scorer = sentiment.NewLexicalScorer(sentiment.DefaultWeights())
		drafter = nil
		now = t0.Add(3 * time.Hour)
		conv = domain.Conversation{ID: 7, Subject: "Refund please", Status: domain.ConversationStatusActive}
	})

	It("publishes an initial analysis with its marker", func() {
		platform.threads[7] = []domain.Thread{customer("<p>I want a refund now!!!!</p>", t0)}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Verdict).To(Equal(triage.VerdictInitial))
		Expect(res.Outcome.Action).To(Equal(domain.TriageActionInitial))
		Expect(res.Scoring.AngerScore).To(Equal(40))
		Expect(res.Scoring.Confidence).To(Equal(domain.ConfidenceMedium))

		Expect(platform.notes).To(HaveLen(1))
		text := platform.notes[0].Text
		Expect(text).To(ContainSubstring("Sentiment: Frustrated (anger 40/100, urgency 45/100, confidence medium)"))
		Expect(text).To(HaveSuffix(fmt.Sprintf("<!-- triage-state:v2 anger=40 urgency=45 at=%d -->", now.Unix())))

		Expect(platform.tags).To(Equal([]string{"sentiment-frustrated"}))
		Expect(notify.alerts).To(BeEmpty())

		Expect(runs.runs).To(HaveLen(1))
		Expect(runs.runs[0].Status).To(Equal(model.TriageRunStatusSucceeded))
		Expect(runs.runs[0].Action).To(Equal("initial"))
		Expect(*runs.runs[0].AngerScore).To(Equal(int32(40)))
		Expect(runs.runs[0].NotePublished).To(BeTrue())
	})

	It("skips without scoring when nothing new arrived", func() {
		platform.threads[7] = []domain.Thread{
			customer("I want a refund now!!!!", t0),
			markerNote(40, 45, t0.Add(time.Hour)),
		}
		scorer = scorerFunc(func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
			Fail("scorer should not run")
			return domain.ScoringResult{}, nil
		})

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Verdict).To(Equal(triage.VerdictSkip))
		Expect(res.Outcome.Action).To(Equal(domain.TriageActionSkip))
		Expect(platform.notes).To(BeEmpty())
		Expect(platform.tags).To(BeEmpty())
		Expect(runs.runs[0].Status).To(Equal(model.TriageRunStatusSkipped))
	})

	It("suppresses the note on a stable rescore but still tags", func() {
		platform.threads[7] = []domain.Thread{
			customer("I want a refund now!!!!", t0),
			markerNote(40, 45, t0.Add(time.Hour)),
			customer("thanks, any news on this?", t0.Add(2*time.Hour)),
		}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome.Action).To(Equal(domain.TriageActionIncrementalStable))
		Expect(res.Note).To(BeEmpty())
		Expect(platform.notes).To(BeEmpty())
		Expect(platform.tags).To(Equal([]string{"sentiment-calm"}))
	})

	It("states the escalation, alerts and drafts a reply", func() {
		cfg.DraftReplies = true
		cfg.TagPrefix = "triage"
		var draftReq reply.Request
		drafter = &mockDrafter{draftFn: func(_ context.Context, req reply.Request) (string, error) {
			draftReq = req
			return "Sorry about this.", nil
		}}
		conv.Tags = []string{"triage-sentiment-angry"}
		platform.threads[7] = []domain.Thread{
			customer("hello", t0),
			markerNote(0, 0, t0.Add(time.Hour)),
			customer(angryText, t0.Add(2*time.Hour)),
		}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome.Action).To(Equal(domain.TriageActionIncrementalEscalated))
		Expect(res.Scoring.AngerScore).To(Equal(90))

		Expect(platform.notes).To(HaveLen(1))
		Expect(platform.notes[0].Text).To(ContainSubstring("Escalation: anger +90, urgency +45 since 2025-03-01 13:00 UTC"))
		Expect(platform.tags).To(Equal([]string{"triage-escalated"}))

		Expect(draftReq.CustomerText).To(Equal(angryText))
		Expect(platform.drafts).To(Equal([]string{"Sorry about this."}))
		Expect(res.Drafted).To(BeTrue())

		Expect(notify.alerts).To(HaveLen(1))
		Expect(notify.alerts[0].Action).To(Equal("incremental_escalated"))
		Expect(res.Notified).To(BeTrue())
	})

	It("tolerates platforms without draft support", func() {
		cfg.DraftReplies = true
		drafter = &mockDrafter{draftFn: func(context.Context, reply.Request) (string, error) {
			return "draft", nil
		}}
		platform.draftFn = func(context.Context, int64, int64, string) error {
			return fmt.Errorf("gitlab drafts: %w", ticketing.ErrNotSupported)
		}
		platform.threads[7] = []domain.Thread{customer(angryText, t0)}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Drafted).To(BeFalse())
		Expect(platform.notes).To(HaveLen(1))
	})

	It("tags degraded results", func() {
		scorer = scorerFunc(func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
			return domain.ScoringResult{
				AngerScore: 75, UrgencyScore: 80,
				Confidence: domain.ConfidenceLow,
				Source:     domain.ScoreSourceFallback,
				Degraded:   true,
			}, nil
		})
		platform.threads[7] = []domain.Thread{customer("anything", t0)}

		_, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(platform.tags).To(Equal([]string{"sentiment-angry", "urgent", "sentiment-degraded"}))
		Expect(platform.notes[0].Text).To(ContainSubstring("Warning: degraded confidence"))
		Expect(runs.runs[0].Degraded).To(BeTrue())
	})

	It("publishes a failure note without a marker when scoring fails", func() {
		scorer = scorerFunc(func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
			return domain.ScoringResult{}, errors.New("model exploded")
		})
		platform.threads[7] = []domain.Thread{customer("anything", t0)}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).To(MatchError(ContainSubstring("scoring: model exploded")))
		Expect(triage.IsRetryable(err)).To(BeFalse())
		Expect(res.Err).To(Equal(err))
		Expect(platform.notes).To(HaveLen(1))
		Expect(platform.notes[0].Text).To(ContainSubstring("Sentiment analysis failed: model exploded"))
		Expect(platform.notes[0].Text).NotTo(ContainSubstring("triage-state"))
		Expect(runs.runs[0].Status).To(Equal(model.TriageRunStatusFailed))
		Expect(*runs.runs[0].Error).To(ContainSubstring("model exploded"))
	})

	It("marks transient upstream failures retryable", func() {
		platform.threads[7] = []domain.Thread{customer("hello", t0)}
		platform.publishNoteFn = func(context.Context, int64, string) error {
			return &ticketing.TransientUpstreamError{Op: "publish note", StatusCode: 503, Err: errors.New("unavailable")}
		}

		_, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).To(HaveOccurred())
		Expect(triage.IsRetryable(err)).To(BeTrue())
		Expect(errors.Is(err, ticketing.ErrTransient)).To(BeTrue())
		Expect(platform.tags).To(BeEmpty())
	})

	It("changes nothing on read-only passes", func() {
		cfg.ReadOnly = true
		platform.threads[7] = []domain.Thread{customer(angryText, t0)}

		res, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Note).To(ContainSubstring("Sentiment: Angry"))
		Expect(res.NotePublished).To(BeFalse())
		Expect(platform.notes).To(BeEmpty())
		Expect(platform.tags).To(BeEmpty())
		Expect(notify.alerts).To(BeEmpty())
	})

	It("reanalyses closed history when forced read-only", func() {
		conv.Status = domain.ConversationStatusClosed
		platform.threads[7] = []domain.Thread{
			customer(angryText, t0),
			markerNote(90, 45, t0.Add(time.Hour)),
		}
		override := triage.Override{Force: true, ReadOnly: true, ClosedOnly: true}

		res, err := newProcessor().Process(ctx, conv, triage.Options{Override: override})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Verdict).To(Equal(triage.VerdictRescore))
		Expect(res.Outcome.Action).To(Equal(domain.TriageActionIncrementalStable))
		Expect(res.Scoring.AngerScore).To(Equal(90))
		Expect(platform.notes).To(BeEmpty())
		Expect(runs.runs[0].Forced).To(BeTrue())
		Expect(res.Note).To(ContainSubstring("Sentiment: Angry"))
		Expect(runs.runs[0].NotePublished).To(BeFalse())
		Expect(*runs.runs[0].Note).To(Equal(res.Note))
	})

	It("fails the pass when threads cannot be listed", func() {
		platform.listThreadsFn = func(context.Context, int64, int) (crawler.Page[domain.Thread], error) {
			return crawler.Page[domain.Thread]{}, &ticketing.TransientUpstreamError{Op: "list threads", StatusCode: 502, Err: errors.New("bad gateway")}
		}

		_, err := newProcessor().Process(ctx, conv, triage.Options{})
		Expect(err).To(MatchError(ContainSubstring("listing threads")))
		Expect(triage.IsRetryable(err)).To(BeTrue())
		Expect(runs.runs[0].Action).To(Equal("none"))
		Expect(runs.runs[0].Status).To(Equal(model.TriageRunStatusFailed))
	})
})

var _ = Describe("Tags", func() {
	DescribeTable("derives tags from a result",
		func(r domain.ScoringResult, action domain.TriageAction, want []string) {
			Expect(triage.Tags(r, domain.TriageOutcome{Action: action})).To(Equal(want))
		},
		Entry("calm", domain.ScoringResult{AngerScore: 10}, domain.TriageActionInitial, []string{"sentiment-calm"}),
		Entry("frustrated and urgent", domain.ScoringResult{AngerScore: 45, UrgencyScore: 70}, domain.TriageActionInitial,
			[]string{"sentiment-frustrated", "urgent"}),
		Entry("angry escalation", domain.ScoringResult{AngerScore: 70}, domain.TriageActionIncrementalEscalated,
			[]string{"sentiment-angry", "escalated"}),
	)
})
