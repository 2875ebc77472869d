package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/metrics"
	"github.com/rosevoul/recserve/internal/usecase/merge"
	"github.com/rosevoul/recserve/internal/usecase/rank"
)

const defaultK = 20

// Context is the request context.
type Context struct {
	Surface string
	Locale  string
}

// Request is one recommendation request at the pipeline boundary.
type Request struct {
	UserID  string
	Query   string
	K       int
	Context Context
}

// Diagnostics explains how the response was produced.
type Diagnostics struct {
	Mode               domain.Mode
	Availability       float64
	StrategiesFellBack []string
	RerankApplied      bool
	RerankSkip         string
	StageLatenciesMs   map[string]int64
}

// Response is the final ordered list with provenance.
type Response struct {
	RequestID    string
	Ranked       []domain.RankedItem
	ModelVersion string
	Diagnostics  Diagnostics
}

// Service runs the full candidate serving pipeline:
// expand → embed → retrieve×N → merge → rank → rerank.
// Every stage fails open; only configuration faults return an error.
type Service struct {
	expander Expander
	embedder Embedder
	users    UserVectorReader
	merger   Merger
	ranker   Ranker
	reranker Reranker
	fallback FallbackSource
	cfg      config.PipelineConfig
	logger   *zap.Logger
}

// New creates the pipeline service.
func New(
	expander Expander, embedder Embedder, users UserVectorReader,
	merger Merger, ranker Ranker, reranker Reranker, fallback FallbackSource,
	cfg config.PipelineConfig, logger *zap.Logger,
) *Service {
	return &Service{
		expander: expander,
		embedder: embedder,
		users:    users,
		merger:   merger,
		ranker:   ranker,
		reranker: reranker,
		fallback: fallback,
		cfg:      cfg,
		logger:   logger,
	}
}

// Recommend produces the final ordered item list for one request.
func (s *Service) Recommend(ctx context.Context, req Request) (Response, error) {
	if req.K <= 0 {
		req.K = defaultK
	}
	requestID := uuid.NewString()
	latencies := make(map[string]int64, 5)

	start := time.Now()
	variants := s.expander.Expand(ctx, req.Query, req.Context.Surface, req.Context.Locale)
	observe("expand", start, latencies)

	start = time.Now()
	embeddings := s.embedVariants(ctx, variants.Variants)
	userVector := s.userVector(ctx, req.UserID)
	observe("embed", start, latencies)

	start = time.Now()
	candidates, fellBack, err := s.gatherCandidates(ctx, embeddings, userVector, req)
	observe("retrieve", start, latencies)
	if err != nil {
		return Response{}, err
	}

	start = time.Now()
	ranked, err := s.ranker.Rank(ctx, req.UserID, candidates, rank.Context{
		Surface: req.Context.Surface,
		Locale:  req.Context.Locale,
	})
	observe("rank", start, latencies)
	if err != nil {
		return Response{}, fmt.Errorf("rank: %w", err)
	}

	start = time.Now()
	refined := s.reranker.Rerank(ctx, variants.Anchor(), ranked.Items, req.Context.Surface)
	observe("rerank", start, latencies)

	final := refined.Items
	if len(final) > req.K {
		final = final[:req.K]
	}

	return Response{
		RequestID:    requestID,
		Ranked:       final,
		ModelVersion: ranked.ModelVersion,
		Diagnostics: Diagnostics{
			Mode:               ranked.Mode,
			Availability:       ranked.Availability,
			StrategiesFellBack: fellBack,
			RerankApplied:      refined.Applied,
			RerankSkip:         refined.Skip,
			StageLatenciesMs:   latencies,
		},
	}, nil
}

// gatherCandidates merges across strategies, or serves the popularity list
// directly when no embedding of any kind could be produced.
func (s *Service) gatherCandidates(
	ctx context.Context, embeddings [][]float32, userVector []float32, req Request,
) ([]domain.Candidate, []string, error) {
	if len(embeddings) == 0 && userVector == nil {
		s.logger.Warn("No strategy embeddings available, serving popularity",
			zap.String("user_id", req.UserID))
		candidates, err := s.fallback.TopN(ctx, req.K)
		if err != nil {
			return nil, nil, fmt.Errorf("fallback candidates: %w", err)
		}
		return candidates, []string{"all"}, nil
	}

	out, err := s.merger.Merge(ctx, merge.Input{
		VariantEmbeddings: embeddings,
		UserEmbedding:     userVector,
		IndexVersion:      s.cfg.DefaultIndexVersion,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("merge: %w", err)
	}
	return out.Candidates, out.FellBack(), nil
}

// embedVariants vectorizes all variants concurrently. A failed variant is
// dropped with a log line; variant order is preserved for the survivors so
// the anchor keeps its priority.
func (s *Service) embedVariants(ctx context.Context, variants []string) [][]float32 {
	results := make([][]float32, len(variants))

	var wg sync.WaitGroup
	for i, v := range variants {
		if v == "" {
			continue
		}
		wg.Add(1)
		go func(i int, v string) {
			defer wg.Done()
			res, err := s.embedder.Embed(ctx, v)
			if err != nil {
				s.logger.Warn("Variant embedding failed", zap.String("variant", v), zap.Error(err))
				return
			}
			results[i] = res.Embedding
		}(i, v)
	}
	wg.Wait()

	out := make([][]float32, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) userVector(ctx context.Context, userID string) []float32 {
	if userID == "" {
		return nil
	}
	vec, err := s.users.UserVector(ctx, userID)
	if err != nil {
		s.logger.Warn("User vector read failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return vec
}

func observe(stage string, start time.Time, latencies map[string]int64) {
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	latencies[stage] = elapsed.Milliseconds()
}
