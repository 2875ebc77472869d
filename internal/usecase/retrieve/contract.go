package retrieve

import (
	"context"

	"github.com/rosevoul/recserve/internal/domain"
)

// Index runs approximate KNN lookups.
type Index interface {
	Search(ctx context.Context, indexName string, vector []float32, k, efRuntime int) ([]domain.Candidate, error)
}

// FallbackSource supplies the deterministic last-resort candidate list.
type FallbackSource interface {
	TopN(ctx context.Context, n int) ([]domain.Candidate, error)
}

// ArtifactResolver resolves index versions to published artifacts.
type ArtifactResolver interface {
	Resolve(indexVersion string) (domain.IndexArtifact, error)
	IndexName(indexVersion string) (string, error)
}
