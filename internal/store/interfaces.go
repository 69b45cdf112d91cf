package store

import (
	"context"
	"errors"

	"basegraph.app/triage/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// TriageRunStore records the outcome of every triage pass
type TriageRunStore interface {
	Record(ctx context.Context, run *model.TriageRun) (*model.TriageRun, error)
	GetByID(ctx context.Context, id int64) (*model.TriageRun, error)
	ListByConversation(ctx context.Context, provider string, conversationID int64, limit int32) ([]model.TriageRun, error)
}
