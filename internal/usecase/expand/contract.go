package expand

import (
	"context"

	"github.com/rosevoul/recserve/internal/domain"
)

// Generator produces candidate query rewrites.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerateRequest) (string, error)
}

// Cache stores variant sets keyed by (logic version, surface, locale, query).
type Cache interface {
	Get(ctx context.Context, version, surface, locale, query string) (domain.QueryVariantSet, bool)
	Put(ctx context.Context, version, surface, locale, query string, set domain.QueryVariantSet)
}
