package sentiment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/triage/common/llm"
	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/domain"
)

// ErrScoringUnavailable wraps every failure of a non-deterministic scorer.
var ErrScoringUnavailable = errors.New("scoring unavailable")

// Scorer turns customer text into a scoring result.
type Scorer interface {
	Score(ctx context.Context, text string, sc ScoreContext) (domain.ScoringResult, error)
}

// ScoreContext is side information a scorer may use. The lexical scorer ignores it.
type ScoreContext struct {
	Subject      string
	CustomerName string
	Plan         string // billing plan, empty when unknown
	Prior        *domain.EscalationMarker
}

// FallbackScorer runs Primary and, when it fails, answers with Fallback's
// result marked degraded. Without a Fallback it answers with a neutral result.
type FallbackScorer struct {
	Primary  Scorer
	Fallback Scorer
}

func (s *FallbackScorer) Score(ctx context.Context, text string, sc ScoreContext) (domain.ScoringResult, error) {
	res, err := s.Primary.Score(ctx, text, sc)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return domain.ScoringResult{}, ctx.Err()
	}

	transient := llm.IsRetryable(ctx, err)
	slog.WarnContext(ctx, "primary scorer failed, using fallback", "error", err, "transient", transient)

	var fb domain.ScoringResult
	if s.Fallback != nil {
		fbRes, fbErr := s.Fallback.Score(ctx, text, sc)
		if fbErr != nil {
			slog.ErrorContext(ctx, "fallback scorer failed, using neutral result", "error", fbErr)
		} else {
			fb = fbRes
		}
	}

	fb.Confidence = domain.ConfidenceLow
	fb.Source = domain.ScoreSourceFallback
	fb.Degraded = true
	fb.DegradedReason = degradedReason(err, transient)
	return fb, nil
}

// degradedReason tells a transient model outage apart from a request the
// provider rejected, which will keep failing until configuration changes.
func degradedReason(err error, transient bool) string {
	if transient {
		return err.Error() + " (transient)"
	}
	return err.Error() + " (rejected by model provider)"
}

// NewScorer builds the scorer named by cfg.Strategy. The AI strategy is always
// wrapped so that an unavailable model degrades to the lexical heuristic.
func NewScorer(cfg config.ScoringConfig, client llm.Client, maxTokens int) (Scorer, error) {
	weights, err := LoadWeights(cfg.WeightsFile)
	if err != nil {
		return nil, err
	}
	lexical := NewLexicalScorer(weights)

	switch cfg.Strategy {
	case "", config.StrategyLexical:
		return lexical, nil
	case config.StrategyAI:
		if client == nil {
			return nil, fmt.Errorf("ai scoring requires an llm client")
		}
		return &FallbackScorer{
			Primary:  NewAIScorer(client, lexical, maxTokens),
			Fallback: lexical,
		}, nil
	default:
		return nil, fmt.Errorf("unknown scoring strategy %q", cfg.Strategy)
	}
}
