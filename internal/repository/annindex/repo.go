package annindex

import (
	"context"
	"fmt"
	"strings"

	"github.com/rosevoul/recserve/internal/db"
	"github.com/rosevoul/recserve/internal/domain"
)

var itemKeyPrefix = domain.KeyPrefix + "item:"

// searcher is the consumer interface for ANN lookups (ISP).
type searcher interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo adapts the store's KNN search to candidate lists.
type Repo struct {
	store searcher
}

// New creates an ANN index repository.
func New(s searcher) *Repo {
	return &Repo{store: s}
}

// Search runs an approximate KNN lookup against one index. efRuntime bounds
// query-time search effort; zero leaves the server default in place.
func (r *Repo) Search(
	ctx context.Context, indexName string, vector []float32, k, efRuntime int,
) ([]domain.Candidate, error) {
	q := &db.KNNQuery{
		IndexName: indexName,
		Vector:    vector,
		K:         k,
		EFRuntime: efRuntime,
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", indexName, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	candidates := make([]domain.Candidate, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		candidates = append(candidates, domain.Candidate{
			ItemID:     strings.TrimPrefix(entry.Key, itemKeyPrefix),
			Similarity: entry.Score,
		})
	}
	return candidates, nil
}
