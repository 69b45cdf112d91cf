package dto

import "time"

type EnqueueResponse struct {
	Status         string `json:"status"`
	ConversationID int64  `json:"conversation_id,string,omitempty"`
	Force          bool   `json:"force,omitempty"`
}

type CrawlRequest struct {
	Status string `json:"status,omitempty" binding:"omitempty,oneof=active pending closed"`
}

type TriageRunResponse struct {
	ID             int64     `json:"id,string"`
	ConversationID int64     `json:"conversation_id,string"`
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
	Note           *string   `json:"note,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
