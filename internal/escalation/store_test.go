package escalation_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"basegraph.app/triage/internal/domain"
	"basegraph.app/triage/internal/escalation"
)

type fakeKV struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeKV) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

var _ = Describe("RedisMarkerStore", func() {
	var (
		ctx   context.Context
		kv    *fakeKV
		store *escalation.RedisMarkerStore
		t0    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		kv = newFakeKV()
		store = escalation.NewRedisMarkerStore(kv, "test", time.Hour)
		t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	It("reports a miss without error", func() {
		_, ok, err := store.Get(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("stores markers under a prefixed key with ttl", func() {
		Expect(store.Set(ctx, 7, domain.EscalationMarker{AngerScore: 60, UrgencyScore: 20, NoteCreatedAt: t0})).To(Succeed())
		Expect(kv.values).To(HaveKey("test:escalation:7"))
		Expect(kv.ttls["test:escalation:7"]).To(Equal(time.Hour))

		m, ok, err := store.Get(ctx, 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(m.AngerScore).To(Equal(60))
		Expect(m.NoteCreatedAt.Equal(t0)).To(BeTrue())
		Expect(m.Layout).To(Equal(domain.MarkerLayoutStore))
	})

	It("flags garbage values as malformed", func() {
		kv.values["test:escalation:7"] = "not json"
		_, _, err := store.Get(ctx, 7)
		Expect(errors.Is(err, escalation.ErrMalformedMarker)).To(BeTrue())
	})

	It("wraps redis failures", func() {
		kv.err = errors.New("connection refused")
		_, _, err := store.Get(ctx, 7)
		Expect(err).To(MatchError(ContainSubstring("connection refused")))
	})
})

var _ = Describe("StateRepository", func() {
	var (
		ctx   context.Context
		codec escalation.TextCodec
		t0    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		codec = escalation.NewTextCodec()
		t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	})

	It("decodes notes when there is no store", func() {
		repo := escalation.NewStateRepository(codec, nil)
		threads := []domain.Thread{note(codec.Encode(domain.ScoringResult{AngerScore: 33}, t0), t0)}

		m := repo.Load(ctx, 1, threads)
		Expect(m).NotTo(BeNil())
		Expect(m.AngerScore).To(Equal(33))
	})

	It("returns nil without notes or stored state", func() {
		repo := escalation.NewStateRepository(codec, &mockMarkerStore{})
		Expect(repo.Load(ctx, 1, nil)).To(BeNil())
	})

	It("prefers a newer stored marker", func() {
		store := &mockMarkerStore{getFn: func(context.Context, int64) (domain.EscalationMarker, bool, error) {
			return domain.EscalationMarker{AngerScore: 80, NoteCreatedAt: t0.Add(time.Hour)}, true, nil
		}}
		repo := escalation.NewStateRepository(codec, store)
		threads := []domain.Thread{note(codec.Encode(domain.ScoringResult{AngerScore: 33}, t0), t0)}

		m := repo.Load(ctx, 1, threads)
		Expect(m.AngerScore).To(Equal(80))
	})

	It("keeps the note marker when the stored one is older", func() {
		store := &mockMarkerStore{getFn: func(context.Context, int64) (domain.EscalationMarker, bool, error) {
			return domain.EscalationMarker{AngerScore: 80, NoteCreatedAt: t0.Add(-time.Hour)}, true, nil
		}}
		repo := escalation.NewStateRepository(codec, store)
		threads := []domain.Thread{note(codec.Encode(domain.ScoringResult{AngerScore: 33}, t0), t0)}

		Expect(repo.Load(ctx, 1, threads).AngerScore).To(Equal(33))
	})

	It("falls back to notes when the store fails", func() {
		store := &mockMarkerStore{getFn: func(context.Context, int64) (domain.EscalationMarker, bool, error) {
			return domain.EscalationMarker{}, false, errors.New("redis down")
		}}
		repo := escalation.NewStateRepository(codec, store)
		threads := []domain.Thread{note(codec.Encode(domain.ScoringResult{AngerScore: 33}, t0), t0)}

		Expect(repo.Load(ctx, 1, threads).AngerScore).To(Equal(33))
	})

	It("saves through the store and swallows failures", func() {
		var saved []int64
		store := &mockMarkerStore{setFn: func(_ context.Context, id int64, _ domain.EscalationMarker) error {
			saved = append(saved, id)
			return errors.New("redis down")
		}}
		repo := escalation.NewStateRepository(codec, store)

		repo.Save(ctx, 9, domain.EscalationMarker{AngerScore: 1})
		Expect(saved).To(Equal([]int64{9}))
	})
})
