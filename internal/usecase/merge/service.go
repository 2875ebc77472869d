package merge

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/usecase/retrieve"
)

// Input carries the embeddings to fan out over. VariantEmbeddings follow the
// variant-set order (anchor first); UserEmbedding is optional and, when
// present, is the highest-priority strategy.
type Input struct {
	VariantEmbeddings [][]float32
	UserEmbedding     []float32
	IndexVersion      string
}

// StrategyOutcome records how one strategy resolved, for diagnostics.
type StrategyOutcome struct {
	Strategy string
	Source   retrieve.Source
	Reason   string
}

// Output is the merged candidate set with per-strategy provenance.
type Output struct {
	Candidates []domain.Candidate
	Outcomes   []StrategyOutcome
}

// FellBack lists strategies that served from the fallback source.
func (o Output) FellBack() []string {
	var out []string
	for _, s := range o.Outcomes {
		if s.Source == retrieve.SourceFallback {
			out = append(out, s.Strategy)
		}
	}
	return out
}

// Service fans retrieval out across strategies and merges the results. Each
// strategy is independent and runs concurrently under its own deadline; a
// slow strategy degrades to its fallback instead of stalling the merge.
type Service struct {
	retriever Retriever
	cfg       config.MergeConfig
	logger    *zap.Logger
}

// New creates a multi-strategy merger.
func New(retriever Retriever, cfg config.MergeConfig, logger *zap.Logger) *Service {
	return &Service{retriever: retriever, cfg: cfg, logger: logger}
}

// Merge retrieves per strategy and concatenates results in priority order:
// behavioral first, then content variants in variant order. Dedupe keeps the
// first occurrence, so a higher-priority strategy's similarity survives ties.
// An empty output only happens when every strategy and its fallback failed.
func (s *Service) Merge(ctx context.Context, in Input) (Output, error) {
	type strategy struct {
		name      string
		embedding []float32
	}

	strategies := make([]strategy, 0, len(in.VariantEmbeddings)+1)
	if in.UserEmbedding != nil {
		strategies = append(strategies, strategy{name: "behavioral", embedding: in.UserEmbedding})
	}
	for i, emb := range in.VariantEmbeddings {
		strategies = append(strategies, strategy{name: fmt.Sprintf("content:%d", i), embedding: emb})
	}
	if len(strategies) == 0 {
		return Output{}, fmt.Errorf("merge: no strategies to run")
	}

	results := make([]retrieve.Result, len(strategies))
	errs := make([]error, len(strategies))

	var wg sync.WaitGroup
	for i, st := range strategies {
		wg.Add(1)
		go func(i int, st strategy) {
			defer wg.Done()
			results[i], errs[i] = s.retriever.Retrieve(ctx, st.embedding, s.cfg.Width, in.IndexVersion)
		}(i, st)
	}
	wg.Wait()

	// Retrieval errors are configuration faults (unknown version, dim
	// mismatch), not transient failures, so they surface instead of merging.
	for i, err := range errs {
		if err != nil {
			return Output{}, fmt.Errorf("strategy %s: %w", strategies[i].name, err)
		}
	}

	var merged []domain.Candidate
	outcomes := make([]StrategyOutcome, len(strategies))
	for i, res := range results {
		outcomes[i] = StrategyOutcome{
			Strategy: strategies[i].name,
			Source:   res.Source,
			Reason:   res.Reason,
		}
		merged = append(merged, res.Candidates...)
	}

	merged = domain.Truncate(domain.DedupeFirstSeen(merged), s.cfg.Width)
	return Output{Candidates: merged, Outcomes: outcomes}, nil
}
