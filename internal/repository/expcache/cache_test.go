package expcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/db"
	"github.com/rosevoul/recserve/internal/domain"
)

type fakeKV struct {
	data map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := f.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeKV) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.data[key] = value
	return nil
}

func TestCache_RoundTrip(t *testing.T) {
	kv := newFakeKV()
	cache := New(kv, time.Hour, nil, zap.NewNop())
	ctx := context.Background()

	set := domain.QueryVariantSet{Variants: []string{"red shoes", "crimson sneakers", "scarlet footwear"}}
	cache.Put(ctx, "qe1", "search", "en-US", "red shoes", set)

	got, ok := cache.Get(ctx, "qe1", "search", "en-US", "red shoes")
	if !ok {
		t.Fatal("expected cache hit after Put")
	}
	if len(got.Variants) != 3 || got.Variants[0] != "red shoes" {
		t.Fatalf("unexpected variants: %v", got.Variants)
	}
}

func TestCache_Miss(t *testing.T) {
	cache := New(newFakeKV(), time.Hour, nil, zap.NewNop())

	if _, ok := cache.Get(context.Background(), "qe1", "search", "en-US", "red shoes"); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestCache_KeyComponents(t *testing.T) {
	kv := newFakeKV()
	cache := New(kv, time.Hour, nil, zap.NewNop())
	ctx := context.Background()

	set := domain.QueryVariantSet{Variants: []string{"red shoes"}}
	cache.Put(ctx, "qe1", "search", "en-US", "red shoes", set)

	// Any differing component must miss: the expansion version moves the
	// whole cache space, surface and locale shape the prompt.
	cases := []struct {
		name                            string
		version, surface, locale, query string
	}{
		{"version", "qe2", "search", "en-US", "red shoes"},
		{"surface", "qe1", "home", "en-US", "red shoes"},
		{"locale", "qe1", "search", "de-DE", "red shoes"},
		{"query", "qe1", "search", "en-US", "blue shoes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := cache.Get(ctx, tc.version, tc.surface, tc.locale, tc.query); ok {
				t.Fatalf("expected miss for differing %s", tc.name)
			}
		})
	}
}

func TestCache_MalformedEntry(t *testing.T) {
	kv := newFakeKV()
	cache := New(kv, time.Hour, nil, zap.NewNop())
	ctx := context.Background()

	kv.data[cache.storageKey("qe1", "search", "en-US", "red shoes")] = []byte("not json")

	if _, ok := cache.Get(ctx, "qe1", "search", "en-US", "red shoes"); ok {
		t.Fatal("expected malformed entry to be treated as miss")
	}
}
