package model

import "time"

// Triage run statuses.
const (
	TriageRunStatusSucceeded = "succeeded"
	TriageRunStatusSkipped   = "skipped"
	TriageRunStatusFailed    = "failed"
)

// TriageRun is the audit record of one pass over one conversation.
type TriageRun struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	Provider       string    `json:"provider"`
	Action         string    `json:"action"`
	Status         string    `json:"status"`
	AngerScore     *int32    `json:"anger_score,omitempty"`
	UrgencyScore   *int32    `json:"urgency_score,omitempty"`
	Confidence     *string   `json:"confidence,omitempty"`
	Source         *string   `json:"source,omitempty"`
	Degraded       bool      `json:"degraded"`
	NotePublished  bool      `json:"note_published"`
	Forced         bool      `json:"forced"`
	Error          *string   `json:"error,omitempty"`
	// Note is the rendered note text, kept whether or not it was published.
	Note           *string   `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
