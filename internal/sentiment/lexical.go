package sentiment

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"basegraph.app/triage/internal/domain"
)

// LexicalScorer is the deterministic keyword heuristic. It is safe for
// concurrent use and never fails.
type LexicalScorer struct {
	weights Weights
	lex     lexicon
}

func NewLexicalScorer(weights Weights) *LexicalScorer {
	return &LexicalScorer{weights: weights, lex: defaultLexicon}
}

// Score implements Scorer. Context is ignored: the lexical heuristic looks at
// the text alone.
func (s *LexicalScorer) Score(_ context.Context, text string, _ ScoreContext) (domain.ScoringResult, error) {
	return s.Analyze(text), nil
}

// Analyze scores raw text. Every input yields a result with a full indicator
// breakdown; empty input scores zero with low confidence.
func (s *LexicalScorer) Analyze(text string) domain.ScoringResult {
	w := s.weights
	lower := strings.ToLower(text)

	profanity := findMatches(lower, s.lex.profanity)
	negative := findMatches(lower, s.lex.negative)
	contexts := findMatches(lower, s.lex.contexts)
	urgency := findMatches(lower, s.lex.urgency)
	insults := findMatches(lower, s.lex.insults)
	refunds := findMatches(lower, s.lex.refunds)

	ind := domain.IndicatorBreakdown{
		ProfanityTerms:   matchTerms(profanity),
		NegativeWords:    matchTerms(negative),
		NegativeContexts: matchTerms(contexts),
		UrgencyKeywords:  matchTerms(urgency),
		InsultPhrases:    matchTerms(insults),
		RefundPhrases:    matchTerms(refunds),
		CapsRatio:        capsRatio(text),
		ExclamationCount: strings.Count(text, "!"),
		WordCount:        len(strings.Fields(lower)),
		HasProfanity:     len(profanity) > 0,
	}

	var ex excerpts
	ex.capture(lower, profanity, w.ProfanityWindow)
	ex.capture(lower, negative, w.NegativeWindow)
	ex.capture(lower, contexts, w.ContextWindow)
	ind.Excerpts = ex.windows

	anger := 0
	if len(profanity) > 0 {
		anger += w.ProfanityBase + w.ProfanityPerTerm*len(profanity)
	}
	anger += w.NegativeWord * len(negative)
	anger += w.NegativeContext * len(contexts)
	anger += s.capsPoints(ind.CapsRatio)
	anger += w.UrgencyKeyword * len(urgency)
	anger += w.Insult * len(insults)
	anger += w.Refund * len(refunds)

	exclaimed := ind.ExclamationCount > w.ExclamationThreshold
	if exclaimed {
		anger += w.Exclamation
	}
	anger = domain.ClampScore(anger)

	urgent := w.UrgencyPerKeyword*len(urgency) + w.UrgencyPerRefund*len(refunds)
	if exclaimed {
		urgent += w.UrgencyExclaimed
	}
	if ind.CapsRatio > w.CapsHighRatio {
		urgent += w.UrgencyShouting
	}

	return domain.ScoringResult{
		AngerScore:   anger,
		UrgencyScore: domain.ClampScore(urgent),
		Confidence:   s.confidence(anger, ind),
		Indicators:   ind,
		Explanation:  explain(ind, w),
		Source:       domain.ScoreSourceLexical,
	}
}

func (s *LexicalScorer) capsPoints(ratio float64) int {
	switch {
	case ratio > s.weights.CapsHighRatio:
		return s.weights.CapsHigh
	case ratio > s.weights.CapsMediumRatio:
		return s.weights.CapsMedium
	default:
		return 0
	}
}

func (s *LexicalScorer) confidence(score int, ind domain.IndicatorBreakdown) domain.Confidence {
	switch {
	case score > s.weights.HighConfidenceAbove:
		return domain.ConfidenceHigh
	case len(ind.RefundPhrases) > 0 && ind.HasProfanity:
		return domain.ConfidenceHigh
	case score >= s.weights.MediumConfidenceFrom && score > 0:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// capsRatio is uppercase letters over all letters, 0 when there are none.
func capsRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

type excerpts struct {
	windows []string
}

// capture adds a window of radius characters around each match. A window
// already contained in a captured one is dropped.
func (e *excerpts) capture(lower string, ms []match, radius int) {
	for _, m := range ms {
		start := m.start
		for i := 0; i < radius && start > 0; i++ {
			_, size := utf8.DecodeLastRuneInString(lower[:start])
			start -= size
		}
		end := m.end
		for i := 0; i < radius && end < len(lower); i++ {
			_, size := utf8.DecodeRuneInString(lower[end:])
			end += size
		}

		window := strings.TrimSpace(lower[start:end])
		if window == "" || e.contains(window) {
			continue
		}
		e.windows = append(e.windows, window)
	}
}

func (e *excerpts) contains(window string) bool {
	for _, w := range e.windows {
		if strings.Contains(w, window) {
			return true
		}
	}
	return false
}

func explain(ind domain.IndicatorBreakdown, w Weights) []string {
	var out []string
	if ind.HasProfanity {
		out = append(out, fmt.Sprintf("Profanity: %s", strings.Join(ind.ProfanityTerms, ", ")))
	}
	if len(ind.InsultPhrases) > 0 {
		out = append(out, fmt.Sprintf("Insults toward support: %s", strings.Join(ind.InsultPhrases, ", ")))
	}
	if len(ind.NegativeContexts) > 0 {
		out = append(out, fmt.Sprintf("Complaints: %s", strings.Join(ind.NegativeContexts, ", ")))
	}
	if len(ind.NegativeWords) > 0 {
		out = append(out, fmt.Sprintf("Negative language: %s", strings.Join(ind.NegativeWords, ", ")))
	}
	if len(ind.RefundPhrases) > 0 {
		out = append(out, fmt.Sprintf("Refund or cancellation intent: %s", strings.Join(ind.RefundPhrases, ", ")))
	}
	if len(ind.UrgencyKeywords) > 0 {
		out = append(out, fmt.Sprintf("Urgency: %s", strings.Join(ind.UrgencyKeywords, ", ")))
	}
	if ind.CapsRatio > w.CapsMediumRatio {
		out = append(out, fmt.Sprintf("Shouting: %.0f%% capitals", ind.CapsRatio*100))
	}
	if ind.ExclamationCount > w.ExclamationThreshold {
		out = append(out, fmt.Sprintf("%d exclamation marks", ind.ExclamationCount))
	}
	return out
}
