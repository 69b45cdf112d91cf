package triage_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/escalation"
	"basegraph.app/triage/internal/sentiment"
	"basegraph.app/triage/internal/service/ticketing"
	"basegraph.app/triage/internal/triage"
)

var _ = Describe("Runner", func() {
	var (
		ctx      context.Context
		cfg      config.TriageConfig
		platform *mockPlatform
		locker   *mockLocker
		runner   *triage.Runner
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.TriageConfig{EscalationThreshold: 20, ListStatus: "active", PageSize: 2, MaxPages: 10, MaxItems: 100, ThreadPageLimit: 2}
		platform = newMockPlatform()
		locker = newMockLocker()

		codec := escalation.NewTextCodec()
		platform.conversations = []domain.Conversation{
			{ID: 1, Status: domain.ConversationStatusActive},
			{ID: 2, Status: domain.ConversationStatusActive},
			{ID: 3, Status: domain.ConversationStatusActive},
		}
		platform.threads[1] = []domain.Thread{customer("I want a refund now!!!!", t0)}
		platform.threads[2] = []domain.Thread{
			customer("hello", t0),
			internalNote(codec.Encode(domain.ScoringResult{}, t0.Add(time.Hour)), t0.Add(time.Hour)),
		}
		platform.threads[3] = []domain.Thread{customer("where is my order", t0)}

		processor := triage.NewProcessor(cfg, triage.Deps{
			Platform: platform,
			State:    escalation.NewStateRepository(codec, nil),
			Scorer:   sentiment.NewLexicalScorer(sentiment.DefaultWeights()),
			Now:      func() time.Time { return t0.Add(2 * time.Hour) },
		})
		runner = triage.NewRunner(cfg, platform, processor, locker)
	})

	It("processes every listed conversation under its lock", func() {
		summary, err := runner.Run(ctx, triage.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary).To(Equal(triage.Summary{Listed: 3, Initial: 2, Skipped: 1}))
		Expect(locker.acquired).To(Equal([]int64{1, 2, 3}))
		Expect(locker.released).To(Equal([]int64{1, 2, 3}))
		Expect(platform.notes).To(HaveLen(2))
	})

	It("lists with the configured status and page size", func() {
		var seen []ticketing.ListParams
		platform.listConversationsFn = func(_ context.Context, p ticketing.ListParams) (crawler.Page[domain.Conversation], error) {
			seen = append(seen, p)
			return crawler.Page[domain.Conversation]{}, nil
		}
		_, err := runner.Run(ctx, triage.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal([]ticketing.ListParams{{Status: domain.ConversationStatusActive, Page: 1, PageSize: 2}}))
	})

	It("keeps going after a failing conversation", func() {
		platform.listThreadsFn = func(_ context.Context, id int64, page int) (crawler.Page[domain.Thread], error) {
			if id == 1 {
				return crawler.Page[domain.Thread]{}, errors.New("boom")
			}
			if page > 1 {
				return crawler.Page[domain.Thread]{}, nil
			}
			return crawler.Page[domain.Thread]{Items: platform.threads[id]}, nil
		}

		summary, err := runner.Run(ctx, triage.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Failed).To(Equal(1))
		Expect(summary.Initial).To(Equal(1))
		Expect(summary.Skipped).To(Equal(1))
	})

	It("leaves locked conversations alone", func() {
		locker.held[1] = true
		summary, err := runner.Run(ctx, triage.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(summary.Locked).To(Equal(1))
		Expect(summary.Initial).To(Equal(1))
	})

	It("processes a partial listing and reports the listing error", func() {
		platform.listConversationsFn = func(_ context.Context, p ticketing.ListParams) (crawler.Page[domain.Conversation], error) {
			if p.Page == 1 {
				return crawler.Page[domain.Conversation]{Items: platform.conversations[:1], HasMore: true}, nil
			}
			return crawler.Page[domain.Conversation]{}, &ticketing.TransientUpstreamError{Op: "list conversations", StatusCode: 503}
		}

		summary, err := runner.Run(ctx, triage.RunOptions{})
		Expect(err).To(MatchError(ContainSubstring("listing conversations")))
		Expect(errors.Is(err, ticketing.ErrTransient)).To(BeTrue())
		Expect(summary.Listed).To(Equal(1))
		Expect(summary.Initial).To(Equal(1))
	})

	It("restricts forced reanalysis to closed conversations", func() {
		var status domain.ConversationStatus
		platform.listConversationsFn = func(_ context.Context, p ticketing.ListParams) (crawler.Page[domain.Conversation], error) {
			status = p.Status
			if p.Page > 1 {
				return crawler.Page[domain.Conversation]{}, nil
			}
			return crawler.Page[domain.Conversation]{Items: []domain.Conversation{
				{ID: 2, Status: domain.ConversationStatusClosed},
				{ID: 3, Status: domain.ConversationStatusActive},
			}}, nil
		}

		summary, err := runner.Run(ctx, triage.RunOptions{
			Override: triage.Override{Force: true, ReadOnly: true, ClosedOnly: true},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(domain.ConversationStatusClosed))
		Expect(summary.Stable).To(Equal(1))
		Expect(summary.Skipped).To(Equal(1))
		Expect(platform.notes).To(BeEmpty())
	})

	Describe("ProcessConversation", func() {
		It("processes one conversation", func() {
			res, err := runner.ProcessConversation(ctx, 1, triage.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome.Action).To(Equal(domain.TriageActionInitial))
		})

		It("returns a fatal error for unknown conversations", func() {
			_, err := runner.ProcessConversation(ctx, 404, triage.Options{})
			Expect(errors.Is(err, triage.ErrConversationNotFound)).To(BeTrue())
			Expect(triage.IsRetryable(err)).To(BeFalse())
		})

		It("treats a held lock as nothing to do", func() {
			locker.held[1] = true
			res, err := runner.ProcessConversation(ctx, 1, triage.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Verdict).To(Equal(triage.VerdictSkip))
			Expect(platform.notes).To(BeEmpty())
		})
	})
})
