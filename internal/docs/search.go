package docs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
	"github.com/typesense/typesense-go/v4/typesense/api/pointer"

	"basegraph.app/triage/core/config"
)

const snippetLen = 400

// Article is a help-center document relevant to a conversation.
type Article struct {
	ID      string
	Title   string
	URL     string
	Snippet string
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Article, error)
}

// TypesenseSearcher queries a Typesense collection of help-center articles.
// Documents are expected to carry title, url and body fields.
type TypesenseSearcher struct {
	client     *typesense.Client
	collection string
	queryBy    string
}

func NewTypesenseSearcher(cfg config.DocsConfig) *TypesenseSearcher {
	client := typesense.NewClient(
		typesense.WithServer(cfg.TypesenseURL),
		typesense.WithAPIKey(cfg.TypesenseAPIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)
	queryBy := cfg.QueryBy
	if queryBy == "" {
		queryBy = "title,body"
	}
	return &TypesenseSearcher{client: client, collection: cfg.Collection, queryBy: queryBy}
}

func (s *TypesenseSearcher) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	res, err := s.client.Collection(s.collection).Documents().Search(ctx, &api.SearchCollectionParams{
		Q:       pointer.String(query),
		QueryBy: pointer.String(s.queryBy),
		PerPage: pointer.Int(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("typesense search %s: %w", s.collection, err)
	}
	if res.Hits == nil {
		return nil, nil
	}

	articles := make([]Article, 0, len(*res.Hits))
	for _, hit := range *res.Hits {
		if hit.Document == nil {
			continue
		}
		doc := *hit.Document
		articles = append(articles, Article{
			ID:      field(doc, "id"),
			Title:   field(doc, "title"),
			URL:     field(doc, "url"),
			Snippet: truncate(field(doc, "body"), snippetLen),
		})
	}
	return articles, nil
}

func field(doc map[string]any, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// CachedSearcher memoises searches in a caller-owned TTLCache.
type CachedSearcher struct {
	next  Searcher
	cache *TTLCache[[]Article]
}

func NewCachedSearcher(next Searcher, cache *TTLCache[[]Article]) *CachedSearcher {
	return &CachedSearcher{next: next, cache: cache}
}

func (s *CachedSearcher) Search(ctx context.Context, query string, limit int) ([]Article, error) {
	key := fmt.Sprintf("%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))
	if hit, ok := s.cache.Get(key); ok {
		slog.DebugContext(ctx, "docs cache hit", "query", query)
		return hit, nil
	}

	articles, err := s.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, articles)
	return articles, nil
}

// Invalidate drops every cached search.
func (s *CachedSearcher) Invalidate() {
	s.cache.Invalidate("")
}
