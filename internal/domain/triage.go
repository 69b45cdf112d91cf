package domain

// TriageAction is the decision taken for a conversation on one pass.
type TriageAction string

const (
	TriageActionInitial              TriageAction = "initial"
	TriageActionIncrementalEscalated TriageAction = "incremental_escalated"
	TriageActionIncrementalStable    TriageAction = "incremental_stable"
	TriageActionSkip                 TriageAction = "skip"
)

// RendersNote reports whether the action produces a note on the conversation.
func (a TriageAction) RendersNote() bool {
	return a == TriageActionInitial || a == TriageActionIncrementalEscalated
}

// ScoreDelta is the change between the prior marker and a fresh analysis.
type ScoreDelta struct {
	Anger   int `json:"anger"`
	Urgency int `json:"urgency"`
}

// TriageOutcome is computed per pass and never persisted beyond the resulting note.
type TriageOutcome struct {
	Action TriageAction      `json:"action"`
	Delta  ScoreDelta        `json:"delta"`
	Prior  *EscalationMarker `json:"prior,omitempty"`
}
