package domain

// Confidence buckets a scoring result.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ScoreSource names the strategy that produced a result.
type ScoreSource string

const (
	ScoreSourceLexical  ScoreSource = "lexical"
	ScoreSourceAI       ScoreSource = "ai"
	ScoreSourceFallback ScoreSource = "fallback"
)

// IndicatorBreakdown records every signal that contributed to a score.
// Matched terms are distinct and listed in lexicon order.
type IndicatorBreakdown struct {
	ProfanityTerms   []string `json:"profanity_terms,omitempty"`
	NegativeWords    []string `json:"negative_words,omitempty"`
	NegativeContexts []string `json:"negative_contexts,omitempty"`
	UrgencyKeywords  []string `json:"urgency_keywords,omitempty"`
	InsultPhrases    []string `json:"insult_phrases,omitempty"`
	RefundPhrases    []string `json:"refund_phrases,omitempty"`
	Excerpts         []string `json:"excerpts,omitempty"`
	CapsRatio        float64  `json:"caps_ratio"`
	ExclamationCount int      `json:"exclamation_count"`
	WordCount        int      `json:"word_count"`
	HasProfanity     bool     `json:"has_profanity"`
}

// SignalCount is the number of distinct lexicon matches across all categories.
func (b IndicatorBreakdown) SignalCount() int {
	return len(b.ProfanityTerms) + len(b.NegativeWords) + len(b.NegativeContexts) +
		len(b.UrgencyKeywords) + len(b.InsultPhrases) + len(b.RefundPhrases)
}

// ScoringResult is one fresh analysis of customer text. Never mutated after creation.
type ScoringResult struct {
	AngerScore     int                `json:"anger_score"`
	UrgencyScore   int                `json:"urgency_score"`
	Confidence     Confidence         `json:"confidence"`
	Indicators     IndicatorBreakdown `json:"indicators"`
	Summary        string             `json:"summary,omitempty"`
	Explanation    []string           `json:"explanation,omitempty"`
	Source         ScoreSource        `json:"source"`
	Degraded       bool               `json:"degraded,omitempty"`
	DegradedReason string             `json:"degraded_reason,omitempty"`
}

// ClampScore bounds a score to [0, 100].
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
