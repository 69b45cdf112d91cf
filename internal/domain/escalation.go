package domain

import "time"

// MarkerLayout identifies which textual grammar a marker was read from.
type MarkerLayout string

const (
	MarkerLayoutCurrent MarkerLayout = "current"
	MarkerLayoutLegacy  MarkerLayout = "legacy"
	MarkerLayoutStore   MarkerLayout = "store"
)

// EscalationMarker is the persisted projection of the last analysis of a conversation.
type EscalationMarker struct {
	AngerScore    int          `json:"anger_score"`
	UrgencyScore  int          `json:"urgency_score"`
	NoteCreatedAt time.Time    `json:"note_created_at"`
	Layout        MarkerLayout `json:"layout,omitempty"`
}
