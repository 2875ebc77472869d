package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownIndexVersion signals a version id the registry has never seen.
	// This is a configuration fault and surfaces as a hard failure.
	ErrUnknownIndexVersion = errors.New("unknown index version")
	// ErrVersionMismatch signals an embedding/index dimension or version incompatibility.
	ErrVersionMismatch = errors.New("version mismatch")
	// ErrInsufficientResults signals a search that returned fewer candidates than the
	// configured minimum; the result is unusable even without a transport error.
	ErrInsufficientResults = errors.New("insufficient results")
	// ErrUpstreamTimeout signals an external call exceeding its budget.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrDegradedFeatures signals batch feature availability below threshold.
	ErrDegradedFeatures = errors.New("degraded features")
	// ErrRerankSchemaViolation signals malformed or non-permutation reranker output.
	ErrRerankSchemaViolation = errors.New("rerank schema violation")
	// ErrGeneratorError signals a generative provider failure.
	ErrGeneratorError = errors.New("generator error")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// DimMismatchError wraps ErrVersionMismatch with the observed dimensions.
type DimMismatchError struct {
	IndexVersion string
	Want         int
	Got          int
}

func (e *DimMismatchError) Error() string {
	return fmt.Sprintf("%s: index %s expects dim %d, got %d",
		ErrVersionMismatch.Error(), e.IndexVersion, e.Want, e.Got)
}

func (e *DimMismatchError) Unwrap() error { return ErrVersionMismatch }

// NewDimMismatch creates a dimension compatibility error.
func NewDimMismatch(indexVersion string, want, got int) error {
	return &DimMismatchError{IndexVersion: indexVersion, Want: want, Got: got}
}
