package store

import (
	"basegraph.app/triage/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) TriageRuns() TriageRunStore {
	return newTriageRunStore(s.q)
}
