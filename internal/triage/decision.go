package triage

import (
	"context"
	"log/slog"
	"strings"

	"basegraph.app/triage/internal/domain"
)

// DefaultEscalationThreshold is the score change, in either dimension, that
// turns a rescore into an escalation.
const DefaultEscalationThreshold = 20

// Verdict is the pre-scoring decision for a conversation.
type Verdict string

const (
	VerdictInitial Verdict = "initial"
	VerdictRescore Verdict = "rescore"
	VerdictSkip    Verdict = "skip"
)

// Override forces reanalysis of conversations with no new customer input.
// It only takes effect for read-only passes over closed conversations.
type Override struct {
	Force      bool
	ReadOnly   bool
	ClosedOnly bool
}

// Effective reports whether the force flag is honored.
func (o Override) Effective() bool {
	return o.Force && o.ReadOnly && o.ClosedOnly
}

type Input struct {
	Threads  []domain.Thread
	Prior    *domain.EscalationMarker
	Override Override
}

type Decision struct {
	Verdict Verdict
	Prior   *domain.EscalationMarker
	// Fresh holds customer messages created strictly after the prior marker.
	Fresh  []domain.Thread
	Forced bool
}

// Decide chooses between an initial analysis, a rescore and a skip.
// Threads must be in chronological order.
func Decide(ctx context.Context, in Input) Decision {
	if in.Override.Force && !in.Override.Effective() {
		slog.DebugContext(ctx, "force override ignored outside read-only closed passes",
			"read_only", in.Override.ReadOnly,
			"closed_only", in.Override.ClosedOnly)
	}

	if in.Prior == nil {
		return Decision{Verdict: VerdictInitial}
	}

	fresh := customerMessagesAfter(in.Threads, in.Prior)
	switch {
	case len(fresh) > 0:
		return Decision{Verdict: VerdictRescore, Prior: in.Prior, Fresh: fresh}
	case in.Override.Effective():
		return Decision{Verdict: VerdictRescore, Prior: in.Prior, Forced: true}
	default:
		return Decision{Verdict: VerdictSkip, Prior: in.Prior}
	}
}

func customerMessagesAfter(threads []domain.Thread, prior *domain.EscalationMarker) []domain.Thread {
	var out []domain.Thread
	for _, t := range threads {
		if t.IsCustomerMessage() && t.CreatedAt.After(prior.NoteCreatedAt) {
			out = append(out, t)
		}
	}
	return out
}

// Classify compares a fresh result with the prior marker. A nil prior is an
// initial analysis. Non-positive thresholds use the default.
func Classify(prior *domain.EscalationMarker, result domain.ScoringResult, threshold int) domain.TriageOutcome {
	if prior == nil {
		return domain.TriageOutcome{Action: domain.TriageActionInitial}
	}
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}

	delta := domain.ScoreDelta{
		Anger:   result.AngerScore - prior.AngerScore,
		Urgency: result.UrgencyScore - prior.UrgencyScore,
	}
	action := domain.TriageActionIncrementalEscalated
	if delta.Anger < threshold && delta.Urgency < threshold {
		action = domain.TriageActionIncrementalStable
	}
	return domain.TriageOutcome{Action: action, Delta: delta, Prior: prior}
}

// TextToScore selects the customer text a decision scores. A forced rescore
// with nothing new scores the whole history.
func TextToScore(threads []domain.Thread, d Decision, clean func(string) string) string {
	var selected []domain.Thread
	switch {
	case d.Verdict == VerdictRescore && len(d.Fresh) > 0:
		selected = d.Fresh
	case d.Verdict == VerdictSkip:
		return ""
	default:
		for _, t := range threads {
			if t.IsCustomerMessage() {
				selected = append(selected, t)
			}
		}
	}

	parts := make([]string, 0, len(selected))
	for _, t := range selected {
		body := t.Body
		if clean != nil {
			body = clean(body)
		}
		if body = strings.TrimSpace(body); body != "" {
			parts = append(parts, body)
		}
	}
	return strings.Join(parts, "\n\n")
}
