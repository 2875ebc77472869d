package merge

import (
	"context"

	"github.com/rosevoul/recserve/internal/usecase/retrieve"
)

// Retriever runs one fail-open candidate lookup.
type Retriever interface {
	Retrieve(ctx context.Context, embedding []float32, k int, indexVersion string) (retrieve.Result, error)
}
