package ticketing

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"basegraph.app/triage/core/config"
	"basegraph.app/triage/internal/crawler"
	"basegraph.app/triage/internal/domain"
)

var (
	ErrUnauthorized = errors.New("ticketing: unauthorized")
	ErrTransient    = errors.New("ticketing: transient upstream failure")
	ErrNotFound     = errors.New("ticketing: not found")
	ErrNotSupported = errors.New("ticketing: not supported by provider")
)

// TransientUpstreamError is a network failure, rate limit or 5xx. It matches
// ErrTransient and is never retried here; the next crawl pass picks it up.
type TransientUpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientUpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

func (e *TransientUpstreamError) Is(target error) bool { return target == ErrTransient }

type ListParams struct {
	Status   domain.ConversationStatus
	Page     int // 1-based
	PageSize int
}

// Platform is the ticketing system conversations live in.
type Platform interface {
	Name() string
	ListConversations(ctx context.Context, params ListParams) (crawler.Page[domain.Conversation], error)
	GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	ListThreads(ctx context.Context, conversationID int64, page int) (crawler.Page[domain.Thread], error)
	PublishNote(ctx context.Context, conversationID int64, text string) error
	AddTag(ctx context.Context, conversationID int64, tag string) error
	CreateDraftReply(ctx context.Context, conversationID, customerID int64, text string) error
}

// NewPlatform builds the client for cfg.Provider.
func NewPlatform(cfg config.TicketingConfig) (Platform, error) {
	switch cfg.Provider {
	case config.ProviderHelpScout:
		return NewHelpScout(cfg.HelpScout, nil), nil
	case config.ProviderGitLab:
		return NewGitLab(cfg.GitLab)
	default:
		return nil, fmt.Errorf("unsupported ticketing provider %q", cfg.Provider)
	}
}

// classifyStatus maps an HTTP status to the error taxonomy. err may be nil.
func classifyStatus(op string, status int, err error) error {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w: %v", op, ErrUnauthorized, err)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w: %v", op, ErrNotFound, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientUpstreamError{Op: op, StatusCode: status, Err: err}
	default:
		return fmt.Errorf("%s: upstream status %d: %w", op, status, err)
	}
}

// classifyTransport wraps errors raised before any response arrived.
func classifyTransport(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransientUpstreamError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
