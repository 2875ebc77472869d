package retrieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/metrics"
)

// Source tags where a candidate set came from.
type Source string

const (
	SourcePrimary  Source = "primary"
	SourceFallback Source = "fallback"
)

// Fallback trigger reasons, used in logs and metric labels.
const (
	ReasonUpstreamTimeout     = "UpstreamTimeout"
	ReasonInsufficientResults = "InsufficientResults"
	ReasonSearchError         = "SearchError"
)

// Result is one retrieval outcome. Reason is set only when Source is fallback.
type Result struct {
	Candidates []domain.Candidate
	Source     Source
	Reason     string
}

// Service retrieves candidates from a versioned ANN index, failing open to
// the popularity source. Only configuration faults (unknown index version,
// dimension mismatch) surface as errors; transport failures, timeouts, and
// thin results all degrade to the fallback list.
type Service struct {
	index     Index
	fallback  FallbackSource
	artifacts ArtifactResolver
	cfg       config.RetrievalConfig
	logger    *zap.Logger
}

// New creates a retrieval service.
func New(index Index, fallback FallbackSource, artifacts ArtifactResolver, cfg config.RetrievalConfig, logger *zap.Logger) *Service {
	return &Service{index: index, fallback: fallback, artifacts: artifacts, cfg: cfg, logger: logger}
}

// Retrieve returns at most k candidates for one embedding against one index
// version. The embedding's dimensionality must match the artifact exactly; a
// mismatch fails fast and is never padded or truncated.
func (s *Service) Retrieve(ctx context.Context, embedding []float32, k int, indexVersion string) (Result, error) {
	artifact, err := s.artifacts.Resolve(indexVersion)
	if err != nil {
		return Result{}, err
	}
	if len(embedding) != artifact.Dim {
		return Result{}, domain.NewDimMismatch(indexVersion, artifact.Dim, len(embedding))
	}
	indexName, err := s.artifacts.IndexName(indexVersion)
	if err != nil {
		return Result{}, err
	}

	searchCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.DeadlineMs)*time.Millisecond)
	defer cancel()

	candidates, err := s.index.Search(searchCtx, indexName, embedding, k, s.cfg.EFRuntime)
	if err != nil {
		reason := ReasonSearchError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonUpstreamTimeout
			err = fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
		}
		return s.fallbackResult(ctx, k, indexVersion, reason, err), nil
	}
	if len(candidates) < s.cfg.MinCandidates {
		cause := fmt.Errorf("%w: got %d, min %d", domain.ErrInsufficientResults, len(candidates), s.cfg.MinCandidates)
		return s.fallbackResult(ctx, k, indexVersion, ReasonInsufficientResults, cause), nil
	}

	return Result{Candidates: domain.Truncate(candidates, k), Source: SourcePrimary}, nil
}

// fallbackResult serves the popularity list in place of the primary result.
// The trigger is logged and counted; the caller still gets a usable set.
func (s *Service) fallbackResult(ctx context.Context, k int, indexVersion, reason string, cause error) Result {
	s.logger.Warn("Retrieval fell back to popularity",
		zap.String("reason", reason),
		zap.String("index_version", indexVersion),
		zap.Error(cause))
	metrics.RetrievalFallbackTotal.WithLabelValues(reason, indexVersion).Inc()

	candidates, err := s.fallback.TopN(ctx, k)
	if err != nil {
		// The popularity set is expected to always be available; an empty
		// result here still lets the merger proceed with other strategies.
		s.logger.Error("Fallback source failed", zap.Error(err))
		return Result{Source: SourceFallback, Reason: reason}
	}
	return Result{Candidates: domain.Truncate(candidates, k), Source: SourceFallback, Reason: reason}
}
