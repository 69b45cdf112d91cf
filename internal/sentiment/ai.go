package sentiment

import (
	"context"
	"fmt"
	"strings"

	"basegraph.app/triage/common/llm"
	"basegraph.app/triage/internal/domain"
)

const aiSystemPrompt = `You assess customer support messages for a support team.

Rate two things on a 0-100 scale:
- anger_score: how angry or frustrated the customer is. 0 is calm, 50 is clearly annoyed, 90+ is hostile.
- urgency_score: how quickly the team must respond. Outages, payment failures, deadlines and cancellation threats are urgent.

Also return:
- confidence: "low", "medium" or "high" depending on how clear the signals are.
- issue_summary: one sentence describing the customer's problem, without quoting profanity.
- explanation: up to 5 short bullet reasons for the scores.

Judge only the customer's words. Do not invent facts.`

// aiAssessment is the structured answer the model must produce.
type aiAssessment struct {
	AngerScore   int      `json:"anger_score" jsonschema:"description=Anger from 0 (calm) to 100 (hostile)"`
	UrgencyScore int      `json:"urgency_score" jsonschema:"description=Urgency from 0 (none) to 100 (drop everything)"`
	Confidence   string   `json:"confidence" jsonschema:"enum=low,enum=medium,enum=high"`
	IssueSummary string   `json:"issue_summary" jsonschema:"description=One sentence summary of the customer's problem"`
	Explanation  []string `json:"explanation" jsonschema:"description=Short reasons for the scores"`
}

var aiAssessmentSchema = llm.GenerateSchema[aiAssessment]()

// AIScorer asks a chat model for the scores. The indicator breakdown still
// comes from the lexical heuristic so notes stay explainable.
type AIScorer struct {
	client     llm.Client
	indicators *LexicalScorer
	maxTokens  int
}

func NewAIScorer(client llm.Client, indicators *LexicalScorer, maxTokens int) *AIScorer {
	return &AIScorer{client: client, indicators: indicators, maxTokens: maxTokens}
}

func (s *AIScorer) Score(ctx context.Context, text string, sc ScoreContext) (domain.ScoringResult, error) {
	lexical := s.indicators.Analyze(text)
	if strings.TrimSpace(text) == "" {
		lexical.Source = domain.ScoreSourceAI
		return lexical, nil
	}

	var out aiAssessment
	_, err := s.client.Chat(ctx, llm.Request{
		SystemPrompt: aiSystemPrompt,
		UserPrompt:   buildAIPrompt(text, sc),
		SchemaName:   "sentiment_assessment",
		Schema:       aiAssessmentSchema,
		MaxTokens:    s.maxTokens,
		Temperature:  llm.Temp(0),
	}, &out)
	if err != nil {
		return domain.ScoringResult{}, fmt.Errorf("%w: %w", ErrScoringUnavailable, err)
	}

	return domain.ScoringResult{
		AngerScore:   domain.ClampScore(out.AngerScore),
		UrgencyScore: domain.ClampScore(out.UrgencyScore),
		Confidence:   parseConfidence(out.Confidence),
		Indicators:   lexical.Indicators,
		Summary:      strings.TrimSpace(out.IssueSummary),
		Explanation:  out.Explanation,
		Source:       domain.ScoreSourceAI,
	}, nil
}

func buildAIPrompt(text string, sc ScoreContext) string {
	var b strings.Builder
	if sc.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", sc.Subject)
	}
	if sc.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", sc.CustomerName)
	}
	if sc.Plan != "" {
		fmt.Fprintf(&b, "Plan: %s\n", sc.Plan)
	}
	if sc.Prior != nil {
		fmt.Fprintf(&b, "Previous assessment: anger %d, urgency %d\n", sc.Prior.AngerScore, sc.Prior.UrgencyScore)
	}
	b.WriteString("\nCustomer messages:\n")
	b.WriteString(text)
	return b.String()
}

func parseConfidence(s string) domain.Confidence {
	switch domain.Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case domain.ConfidenceHigh:
		return domain.ConfidenceHigh
	case domain.ConfidenceMedium:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
