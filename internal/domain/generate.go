package domain

import "context"

// GenerateRequest describes one call to the generative text service.
// Temperature is always zero at this boundary; callers control output size
// via MaxTokens and wall time via the context deadline.
type GenerateRequest struct {
	System    string
	User      string
	MaxTokens int
}

// Generator is the generative text capability consumed by query expansion and
// reranking. Implementations are untrusted, best-effort dependencies: callers
// must schema-validate the output and fail open on any error.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
