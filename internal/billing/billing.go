package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"basegraph.app/triage/core/db"
)

// ErrNotFound is returned when no billing account matches the email.
var ErrNotFound = errors.New("billing account not found")

// Account is the slice of a customer's billing record used as triage context.
type Account struct {
	Email    string
	Plan     string
	Status   string
	MRRCents int64
	RenewsAt *time.Time
}

// Lookup resolves customer accounts. Implementations are read-only.
type Lookup interface {
	Lookup(ctx context.Context, email string) (*Account, error)
}

const lookupSQL = `SELECT email, plan, status, mrr_cents, renews_at
FROM billing_accounts
WHERE lower(email) = lower($1)
ORDER BY updated_at DESC
LIMIT 1`

type Service struct {
	q db.Querier
}

func NewService(q db.Querier) *Service {
	return &Service{q: q}
}

func (s *Service) Lookup(ctx context.Context, email string) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrNotFound
	}

	var (
		acc      Account
		renewsAt *time.Time
	)
	err := s.q.QueryRow(ctx, lookupSQL, email).Scan(&acc.Email, &acc.Plan, &acc.Status, &acc.MRRCents, &renewsAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up billing account: %w", err)
	}
	acc.RenewsAt = renewsAt
	return &acc, nil
}

// Describe renders an account as a one-line prompt fragment.
func (a *Account) Describe() string {
	if a == nil {
		return ""
	}
	parts := []string{a.Plan}
	if a.Status != "" {
		parts = append(parts, a.Status)
	}
	if a.MRRCents > 0 {
		parts = append(parts, fmt.Sprintf("$%d.%02d/mo", a.MRRCents/100, a.MRRCents%100))
	}
	return strings.Join(parts, ", ")
}
