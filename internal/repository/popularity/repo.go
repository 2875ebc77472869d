package popularity

import (
	"context"
	"fmt"

	"github.com/rosevoul/recserve/internal/db"
	"github.com/rosevoul/recserve/internal/domain"
)

var popularityKey = domain.KeyPrefix + "popularity"

// reader is the consumer interface for the popularity sorted set (ISP).
type reader interface {
	TopN(ctx context.Context, key string, n int) ([]db.ScoredMember, error)
}

// Repo reads the popularity store: the last-resort candidate source and the
// ranking tie-break signal. The set is maintained by an offline job and is
// expected to always be available.
type Repo struct {
	store reader
}

// New creates a popularity repository.
func New(s reader) *Repo {
	return &Repo{store: s}
}

// TopN returns the n most popular items as candidates, most popular first.
// Similarity carries the popularity score; like any similarity it is an
// ordering signal only.
func (r *Repo) TopN(ctx context.Context, n int) ([]domain.Candidate, error) {
	members, err := r.store.TopN(ctx, popularityKey, n)
	if err != nil {
		return nil, fmt.Errorf("popularity top%d: %w", n, err)
	}

	candidates := make([]domain.Candidate, len(members))
	for i, m := range members {
		candidates[i] = domain.Candidate{ItemID: m.Member, Similarity: m.Score}
	}
	return candidates, nil
}

// Scores returns popularity scores for the given items. Items missing from
// the set map to zero.
func (r *Repo) Scores(ctx context.Context, itemIDs []string) (map[string]float64, error) {
	if len(itemIDs) == 0 {
		return map[string]float64{}, nil
	}

	// The set is small and cached server-side; one full read beats n ZSCOREs.
	members, err := r.store.TopN(ctx, popularityKey, -1)
	if err != nil {
		return nil, fmt.Errorf("popularity scores: %w", err)
	}

	byID := make(map[string]float64, len(members))
	for _, m := range members {
		byID[m.Member] = m.Score
	}

	out := make(map[string]float64, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = byID[id]
	}
	return out, nil
}
