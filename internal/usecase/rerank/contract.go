package rerank

import (
	"context"

	"github.com/rosevoul/recserve/internal/domain"
)

// Generator produces the reordered id list.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
}

// LiftReader reports the measured ranking lift of the rerank stage for a
// surface, fed by offline experiment analysis. A non-positive lift disables
// the stage: a refinement that does not help is pure latency.
type LiftReader interface {
	Lift(surface string) float64
}
