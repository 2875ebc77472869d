package db

import (
	"context"
	"time"
)

// Store is the backing-store facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces, not on Store.
type Store interface {
	Pinger
	KVStore
	HashReader
	SortedSetReader
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations for the TTL caches.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// HashReader provides read access to hash-shaped feature rows.
// An empty map for a missing key is a legitimate value, not an error.
type HashReader interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// ScoredMember is one sorted-set member with its score.
type ScoredMember struct {
	Member string
	Score  float64
}

// SortedSetReader reads ranked members from a sorted set, highest score first.
// A negative n returns the full set.
type SortedSetReader interface {
	TopN(ctx context.Context, key string, n int) ([]ScoredMember, error)
}

// KNNQuery describes one approximate vector search.
type KNNQuery struct {
	IndexName string
	Vector    []float32
	K         int
	// EFRuntime bounds the search effort at query time, independent of the
	// index's build-time parameters. Zero means server default.
	EFRuntime int
}

// SearchEntry is one search hit.
type SearchEntry struct {
	Key   string
	Score float64
}

// SearchResult is a search response.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// Searcher provides approximate vector search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
