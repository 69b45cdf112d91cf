package sentiment_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"

	"github.com/openai/openai-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/triage/common/llm"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/sentiment"
)

func apiError(status int) *openai.Error {
	req := httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	return &openai.Error{
		StatusCode: status,
		Request:    req,
		Response:   &http.Response{StatusCode: status, Request: req},
	}
}

var _ = Describe("FallbackScorer", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("passes through a successful primary result", func() {
		s := &sentiment.FallbackScorer{
			Primary: &mockScorer{scoreFn: func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
				return domain.ScoringResult{AngerScore: 80, Confidence: domain.ConfidenceHigh, Source: domain.ScoreSourceAI}, nil
			}},
			Fallback: sentiment.NewLexicalScorer(sentiment.DefaultWeights()),
		}

		res, err := s.Score(ctx, "damn", sentiment.ScoreContext{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(80))
		Expect(res.Degraded).To(BeFalse())
	})

	It("falls back to the lexical result marked degraded", func() {
		s := &sentiment.FallbackScorer{
			Primary: &mockScorer{scoreFn: func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
				return domain.ScoringResult{}, sentiment.ErrScoringUnavailable
			}},
			Fallback: sentiment.NewLexicalScorer(sentiment.DefaultWeights()),
		}

		res, err := s.Score(ctx, "damn it, refund me", sentiment.ScoreContext{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(50))
		Expect(res.Degraded).To(BeTrue())
		Expect(res.DegradedReason).To(ContainSubstring("scoring unavailable"))
		Expect(res.Confidence).To(Equal(domain.ConfidenceLow))
		Expect(res.Source).To(Equal(domain.ScoreSourceFallback))
	})

	DescribeTable("labels the degraded reason by failure kind",
		func(cause error, want string) {
			s := &sentiment.FallbackScorer{
				Primary: &mockScorer{scoreFn: func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
					return domain.ScoringResult{}, fmt.Errorf("%w: %w", sentiment.ErrScoringUnavailable, cause)
				}},
				Fallback: sentiment.NewLexicalScorer(sentiment.DefaultWeights()),
			}

			res, err := s.Score(ctx, "refund me", sentiment.ScoreContext{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.DegradedReason).To(HaveSuffix(want))
		},
		Entry("server error", apiError(503), "(transient)"),
		Entry("rate limit", apiError(429), "(transient)"),
		Entry("network failure", errors.New("dial tcp: connection refused"), "(transient)"),
		Entry("bad request", apiError(400), "(rejected by model provider)"),
		Entry("bad credentials", apiError(401), "(rejected by model provider)"),
	)

	It("returns a neutral degraded result without a fallback", func() {
		s := &sentiment.FallbackScorer{
			Primary: &mockScorer{scoreFn: func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
				return domain.ScoringResult{}, errors.New("boom")
			}},
		}

		res, err := s.Score(ctx, "damn", sentiment.ScoreContext{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(0))
		Expect(res.UrgencyScore).To(Equal(0))
		Expect(res.Degraded).To(BeTrue())
		Expect(res.Confidence).To(Equal(domain.ConfidenceLow))
	})

	It("returns a neutral degraded result when the fallback also fails", func() {
		failing := &mockScorer{scoreFn: func(context.Context, string, sentiment.ScoreContext) (domain.ScoringResult, error) {
			return domain.ScoringResult{AngerScore: 99}, errors.New("boom")
		}}
		s := &sentiment.FallbackScorer{Primary: failing, Fallback: failing}

		res, err := s.Score(ctx, "text", sentiment.ScoreContext{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(0))
		Expect(res.Degraded).To(BeTrue())
	})

	It("surfaces cancellation instead of degrading", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		s := &sentiment.FallbackScorer{
			Primary: &mockScorer{scoreFn: func(ctx context.Context, _ string, _ sentiment.ScoreContext) (domain.ScoringResult, error) {
				return domain.ScoringResult{}, ctx.Err()
			}},
			Fallback: sentiment.NewLexicalScorer(sentiment.DefaultWeights()),
		}

		_, err := s.Score(cctx, "text", sentiment.ScoreContext{})
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("AIScorer", func() {
	var (
		ctx     context.Context
		client  *mockLLM
		scorer  *sentiment.AIScorer
		lexical *sentiment.LexicalScorer
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockLLM{}
		lexical = sentiment.NewLexicalScorer(sentiment.DefaultWeights())
		scorer = sentiment.NewAIScorer(client, lexical, 500)
	})

	It("clamps model scores and keeps lexical indicators", func() {
		var captured llm.Request
		client.chatFn = func(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
			captured = req
			return &llm.Response{}, json.Unmarshal([]byte(`{
				"anger_score": 140,
				"urgency_score": -5,
				"confidence": "HIGH",
				"issue_summary": " Customer wants a refund for a double charge. ",
				"explanation": ["asks for refund"]
			}`), result)
		}

		res, err := scorer.Score(ctx, "I want a refund now!!!!", sentiment.ScoreContext{
			Subject: "Double charge",
			Plan:    "pro",
			Prior:   &domain.EscalationMarker{AngerScore: 10, UrgencyScore: 20},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(100))
		Expect(res.UrgencyScore).To(Equal(0))
		Expect(res.Confidence).To(Equal(domain.ConfidenceHigh))
		Expect(res.Summary).To(Equal("Customer wants a refund for a double charge."))
		Expect(res.Source).To(Equal(domain.ScoreSourceAI))
		Expect(res.Indicators.RefundPhrases).To(Equal([]string{"refund"}))

		Expect(captured.SchemaName).To(Equal("sentiment_assessment"))
		Expect(captured.MaxTokens).To(Equal(500))
		Expect(captured.UserPrompt).To(ContainSubstring("Subject: Double charge"))
		Expect(captured.UserPrompt).To(ContainSubstring("Plan: pro"))
		Expect(captured.UserPrompt).To(ContainSubstring("Previous assessment: anger 10, urgency 20"))
		Expect(captured.UserPrompt).To(ContainSubstring("I want a refund now!!!!"))
	})

	It("wraps client failures as scoring unavailable", func() {
		client.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
			return nil, errors.New("503 from upstream")
		}

		_, err := scorer.Score(ctx, "hello", sentiment.ScoreContext{})
		Expect(errors.Is(err, sentiment.ErrScoringUnavailable)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("503 from upstream"))
	})

	It("does not call the model for blank text", func() {
		client.chatFn = func(context.Context, llm.Request, any) (*llm.Response, error) {
			Fail("model should not be called")
			return nil, nil
		}

		res, err := scorer.Score(ctx, "   ", sentiment.ScoreContext{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AngerScore).To(Equal(0))
		Expect(res.Confidence).To(Equal(domain.ConfidenceLow))
	})
})

var _ = Describe("NewScorer", func() {
	It("builds the lexical scorer by default", func() {
		s, err := sentiment.NewScorer(config.ScoringConfig{Strategy: config.StrategyLexical}, nil, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(s).To(BeAssignableToTypeOf(&sentiment.LexicalScorer{}))
	})

	It("wraps the ai scorer with a lexical fallback", func() {
		s, err := sentiment.NewScorer(config.ScoringConfig{Strategy: config.StrategyAI}, &mockLLM{}, 0)
		Expect(err).NotTo(HaveOccurred())
		fb, ok := s.(*sentiment.FallbackScorer)
		Expect(ok).To(BeTrue())
		Expect(fb.Primary).To(BeAssignableToTypeOf(&sentiment.AIScorer{}))
		Expect(fb.Fallback).To(BeAssignableToTypeOf(&sentiment.LexicalScorer{}))
	})

	It("requires a client for the ai strategy", func() {
		_, err := sentiment.NewScorer(config.ScoringConfig{Strategy: config.StrategyAI}, nil, 0)
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown strategies", func() {
		_, err := sentiment.NewScorer(config.ScoringConfig{Strategy: "crystal-ball"}, nil, 0)
		Expect(err).To(MatchError(ContainSubstring("crystal-ball")))
	})
})

var _ = Describe("LoadWeights", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(content string) string {
		path := filepath.Join(dir, "weights.yaml")
		Expect(os.WriteFile(path, []byte(content), 0o600)).To(Succeed())
		return path
	}

	It("returns defaults for an empty path", func() {
		w, err := sentiment.LoadWeights("")
		Expect(err).NotTo(HaveOccurred())
		Expect(w).To(Equal(sentiment.DefaultWeights()))
	})

	It("overrides only the keys present", func() {
		w, err := sentiment.LoadWeights(write("refund: 30\ncaps_high_ratio: 0.6\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Refund).To(Equal(30))
		Expect(w.CapsHighRatio).To(Equal(0.6))
		Expect(w.ProfanityBase).To(Equal(20))
	})

	It("rejects negative weights", func() {
		_, err := sentiment.LoadWeights(write("negative_word: -1\n"))
		Expect(err).To(MatchError(ContainSubstring("negative_word")))
	})

	It("rejects inverted caps thresholds", func() {
		_, err := sentiment.LoadWeights(write("caps_medium_ratio: 0.9\n"))
		Expect(err).To(HaveOccurred())
	})

	It("fails on a missing file", func() {
		_, err := sentiment.LoadWeights(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("fails on invalid yaml", func() {
		_, err := sentiment.LoadWeights(write("refund: [oops"))
		Expect(err).To(MatchError(ContainSubstring("parsing weights file")))
	})
})
