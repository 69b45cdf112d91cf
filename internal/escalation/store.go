package escalation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/triage/internal/domain"
)

// MarkerStore is a keyed cache of the last marker per conversation.
type MarkerStore interface {
	Get(ctx context.Context, conversationID int64) (domain.EscalationMarker, bool, error)
	Set(ctx context.Context, conversationID int64, m domain.EscalationMarker) error
}

// redisKV is the subset of redis.Cmdable the store needs.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type RedisMarkerStore struct {
	client redisKV
	prefix string
	ttl    time.Duration
}

func NewRedisMarkerStore(client redisKV, prefix string, ttl time.Duration) *RedisMarkerStore {
	if prefix == "" {
		prefix = "triage"
	}
	return &RedisMarkerStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisMarkerStore) key(conversationID int64) string {
	return fmt.Sprintf("%s:escalation:%d", s.prefix, conversationID)
}

func (s *RedisMarkerStore) Get(ctx context.Context, conversationID int64) (domain.EscalationMarker, bool, error) {
	raw, err := s.client.Get(ctx, s.key(conversationID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.EscalationMarker{}, false, nil
	}
	if err != nil {
		return domain.EscalationMarker{}, false, fmt.Errorf("redis get marker: %w", err)
	}

	var m domain.EscalationMarker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return domain.EscalationMarker{}, false, fmt.Errorf("%w: stored value: %w", ErrMalformedMarker, err)
	}
	m.Layout = domain.MarkerLayoutStore
	return m, true, nil
}

func (s *RedisMarkerStore) Set(ctx context.Context, conversationID int64, m domain.EscalationMarker) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := s.client.Set(ctx, s.key(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set marker: %w", err)
	}
	return nil
}

// StateRepository recovers the last analysis of a conversation. Notes are the
// source of truth; the store only helps when it knows about a newer marker,
// e.g. a note that was published but is not listed yet.
type StateRepository struct {
	codec Codec
	store MarkerStore
}

// NewStateRepository accepts a nil store, in which case only notes are consulted.
func NewStateRepository(codec Codec, store MarkerStore) *StateRepository {
	return &StateRepository{codec: codec, store: store}
}

func (r *StateRepository) Codec() Codec {
	return r.codec
}

func (r *StateRepository) Load(ctx context.Context, conversationID int64, threads []domain.Thread) *domain.EscalationMarker {
	var best *domain.EscalationMarker
	if m, ok := r.codec.Decode(threads); ok {
		best = &m
	}

	if r.store == nil {
		return best
	}

	stored, ok, err := r.store.Get(ctx, conversationID)
	if err != nil {
		slog.WarnContext(ctx, "escalation store unavailable, using notes only", "error", err)
		return best
	}
	if ok && (best == nil || stored.NoteCreatedAt.After(best.NoteCreatedAt)) {
		best = &stored
	}
	return best
}

// Save records a marker after its note was published. Store errors are logged.
func (r *StateRepository) Save(ctx context.Context, conversationID int64, m domain.EscalationMarker) {
	if r.store == nil {
		return
	}
	if err := r.store.Set(ctx, conversationID, m); err != nil {
		slog.WarnContext(ctx, "failed to save escalation marker", "error", err)
	}
}
