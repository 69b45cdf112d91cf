package crawler

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	DefaultPageSize = 50
	DefaultMaxPages = 10
	DefaultMaxItems = 500
)

// Limits are hard caps on one crawl. Non-positive values fall back to the defaults.
type Limits struct {
	PageSize int
	MaxPages int
	MaxItems int
}

func (l Limits) normalized() Limits {
	if l.PageSize <= 0 {
		l.PageSize = DefaultPageSize
	}
	if l.MaxPages <= 0 {
		l.MaxPages = DefaultMaxPages
	}
	if l.MaxItems <= 0 {
		l.MaxItems = DefaultMaxItems
	}
	return l
}

// Page is one page returned by a fetcher. TotalPages and HasMore come from the
// upstream and are only used as stop hints.
type Page[T any] struct {
	Items      []T
	TotalPages int
	HasMore    bool
}

// PageFetcher fetches a 1-based page.
type PageFetcher[T any] func(ctx context.Context, page, pageSize int) (Page[T], error)

// Crawl pages through fetch until the upstream runs out, an empty page arrives,
// MaxPages pages were fetched or MaxItems items were collected. The result never
// exceeds MaxItems. On a fetch error the items gathered so far are returned
// together with the error.
func Crawl[T any](ctx context.Context, fetch PageFetcher[T], limits Limits) ([]T, error) {
	limits = limits.normalized()

	var items []T
	for page := 1; page <= limits.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		p, err := fetch(ctx, page, limits.PageSize)
		if err != nil {
			return items, fmt.Errorf("fetching page %d: %w", page, err)
		}

		items = append(items, p.Items...)
		if len(items) >= limits.MaxItems {
			slog.DebugContext(ctx, "crawl stopped at item cap", "max_items", limits.MaxItems, "page", page)
			return items[:limits.MaxItems], nil
		}

		if len(p.Items) == 0 || !p.more(page) {
			return items, nil
		}
		if page == limits.MaxPages {
			slog.DebugContext(ctx, "crawl stopped at page cap", "max_pages", limits.MaxPages, "reported_total", p.TotalPages)
		}
	}
	return items, nil
}

func (p Page[T]) more(page int) bool {
	return p.HasMore || page < p.TotalPages
}
