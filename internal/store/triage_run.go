package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/triage/common/id"
	"basegraph.app/triage/core/db"
	"basegraph.app/triage/internal/model"
)

const triageRunColumns = `id, conversation_id, provider, action, status, anger_score, urgency_score,
	confidence, source, degraded, note_published, forced, error, note, created_at`

type triageRunStore struct {
	q db.Querier
}

func newTriageRunStore(q db.Querier) TriageRunStore {
	return &triageRunStore{q: q}
}

// Record inserts the run, assigning an ID when it has none.
func (s *triageRunStore) Record(ctx context.Context, run *model.TriageRun) (*model.TriageRun, error) {
	if run.ID == 0 {
		run.ID = id.New()
	}
	row := s.q.QueryRow(ctx, `INSERT INTO triage_runs (
	id, conversation_id, provider, action, status, anger_score, urgency_score,
	confidence, source, degraded, note_published, forced, error, note
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING `+triageRunColumns,
		run.ID, run.ConversationID, run.Provider, run.Action, run.Status, run.AngerScore, run.UrgencyScore,
		run.Confidence, run.Source, run.Degraded, run.NotePublished, run.Forced, run.Error, run.Note,
	)
	saved, err := scanTriageRun(row)
	if err != nil {
		return nil, fmt.Errorf("recording triage run: %w", err)
	}
	return saved, nil
}

func (s *triageRunStore) GetByID(ctx context.Context, runID int64) (*model.TriageRun, error) {
	row := s.q.QueryRow(ctx, `SELECT `+triageRunColumns+` FROM triage_runs WHERE id = $1`, runID)
	run, err := scanTriageRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *triageRunStore) ListByConversation(ctx context.Context, provider string, conversationID int64, limit int32) ([]model.TriageRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.q.Query(ctx, `SELECT `+triageRunColumns+` FROM triage_runs
WHERE provider = $1 AND conversation_id = $2
ORDER BY created_at DESC
LIMIT $3`, provider, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing triage runs: %w", err)
	}
	defer rows.Close()

	runs := []model.TriageRun{}
	for rows.Next() {
		run, err := scanTriageRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning triage run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing triage runs: %w", err)
	}
	return runs, nil
}

func scanTriageRun(row pgx.Row) (*model.TriageRun, error) {
	var r model.TriageRun
	err := row.Scan(&r.ID, &r.ConversationID, &r.Provider, &r.Action, &r.Status, &r.AngerScore, &r.UrgencyScore,
		&r.Confidence, &r.Source, &r.Degraded, &r.NotePublished, &r.Forced, &r.Error, &r.Note, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
