package note

import (
	"fmt"
	"strings"
	"time"

	"basegraph.app/triage/internal/domain"
)

// Level is the human classification of an anger score.
type Level string

const (
	LevelAngry      Level = "Angry"
	LevelFrustrated Level = "Frustrated"
	LevelCalm       Level = "Calm"
)

func Classify(anger int) Level {
	switch {
	case anger >= 70:
		return LevelAngry
	case anger >= 40:
		return LevelFrustrated
	default:
		return LevelCalm
	}
}

const maxExcerpts = 3

type Input struct {
	Subject string
	Result  domain.ScoringResult
	Outcome domain.TriageOutcome
	// Marker is the encoded state token, appended last.
	Marker string
}

// Render formats an analysis as a plain-text internal note.
func Render(in Input) string {
	var b strings.Builder
	r := in.Result

	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = strings.TrimSpace(in.Subject)
	}
	if summary != "" {
		fmt.Fprintf(&b, "Issue: %s\n", summary)
	}

	fmt.Fprintf(&b, "Sentiment: %s (anger %d/100, urgency %d/100, confidence %s)\n",
		Classify(r.AngerScore), r.AngerScore, r.UrgencyScore, r.Confidence)

	if len(r.Explanation) > 0 {
		b.WriteString("\n")
		for _, e := range r.Explanation {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	if line := indicatorLine(r.Indicators); line != "" {
		fmt.Fprintf(&b, "\nSignals: %s\n", line)
	}
	for i, ex := range r.Indicators.Excerpts {
		if i == maxExcerpts {
			break
		}
		fmt.Fprintf(&b, "> %s\n", ex)
	}

	if in.Outcome.Action == domain.TriageActionIncrementalEscalated && in.Outcome.Prior != nil {
		fmt.Fprintf(&b, "\nEscalation: anger %s, urgency %s since %s\n",
			signed(in.Outcome.Delta.Anger), signed(in.Outcome.Delta.Urgency), formatTime(in.Outcome.Prior.NoteCreatedAt))
	}

	if r.Degraded {
		b.WriteString("\nWarning: degraded confidence, AI scoring was unavailable and the keyword heuristic was used")
		if r.DegradedReason != "" {
			fmt.Fprintf(&b, " (%s)", r.DegradedReason)
		}
		b.WriteString(".\n")
	}

	if in.Marker != "" {
		b.WriteString("\n")
		b.WriteString(in.Marker)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderFailure reports an analysis that could not run. It carries no marker
// so the next pass starts over.
func RenderFailure(err error) string {
	return fmt.Sprintf("Sentiment analysis failed: %v\nIt will be retried on the next triage pass.", err)
}

func indicatorLine(ind domain.IndicatorBreakdown) string {
	var parts []string
	add := func(label string, n int) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", label, n))
		}
	}
	add("profanity", len(ind.ProfanityTerms))
	add("insults", len(ind.InsultPhrases))
	add("complaints", len(ind.NegativeContexts))
	add("negative words", len(ind.NegativeWords))
	add("refund/cancel", len(ind.RefundPhrases))
	add("urgency", len(ind.UrgencyKeywords))
	add("exclamations", ind.ExclamationCount)
	if ind.CapsRatio > 0 {
		parts = append(parts, fmt.Sprintf("caps %.0f%%", ind.CapsRatio*100))
	}
	return strings.Join(parts, ", ")
}

func signed(n int) string {
	if n >= 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "the previous analysis"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
