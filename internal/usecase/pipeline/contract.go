package pipeline

import (
	"context"

	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/usecase/merge"
	"github.com/rosevoul/recserve/internal/usecase/rank"
	"github.com/rosevoul/recserve/internal/usecase/rerank"
)

// Expander produces the query variant set, anchor first.
type Expander interface {
	Expand(ctx context.Context, rawQuery, surface, locale string) domain.QueryVariantSet
}

// Embedder vectorizes one query variant.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// UserVectorReader reads the behavioral embedding of a user. Absence is a
// legitimate value reported as (nil, nil).
type UserVectorReader interface {
	UserVector(ctx context.Context, userID string) ([]float32, error)
}

// Merger fans retrieval out across strategies and merges candidates.
type Merger interface {
	Merge(ctx context.Context, in merge.Input) (merge.Output, error)
}

// Ranker orders merged candidates.
type Ranker interface {
	Rank(ctx context.Context, userID string, candidates []domain.Candidate, reqCtx rank.Context) (domain.RankResult, error)
}

// Reranker optionally refines the top of the ranked list.
type Reranker interface {
	Rerank(ctx context.Context, query string, ranked []domain.RankedItem, surface string) rerank.Result
}

// FallbackSource is the last-resort candidate list, used when no strategy
// embedding could be produced at all.
type FallbackSource interface {
	TopN(ctx context.Context, n int) ([]domain.Candidate, error)
}
