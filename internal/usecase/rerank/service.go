package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/metrics"
)

const rerankSystemPrompt = `You reorder recommendation item ids by relevance to a search query.
Output ONLY a JSON array containing exactly the given ids, best match first.
Never add, remove, or duplicate ids. No explanation.`

// Skip reasons reported in diagnostics when the stage did not apply.
const (
	SkipSurfaceDisabled = "surface_disabled"
	SkipNonPositiveLift = "non_positive_lift"
	SkipTooFewItems     = "too_few_items"
	SkipLatencyBudget   = "latency_budget"
	SkipTimeout         = "timeout"
	SkipGeneratorError  = "generator_error"
	SkipSchemaViolation = "schema_violation"
)

// Result is the rerank outcome. Items always holds a valid order: the blended
// one when Applied, otherwise the primary order untouched, with Skip naming
// why.
type Result struct {
	Items   []domain.RankedItem
	Applied bool
	Skip    string
}

// Service is the optional generative refinement of the top of a ranked list.
// It is strictly a permutation bounded by a small blending weight, and every
// failure mode is fail-open: the primary order always survives.
type Service struct {
	gen     Generator
	lift    LiftReader
	cfg     config.RerankConfig
	window  *latencyWindow
	enabled map[string]struct{}
	logger  *zap.Logger
}

// New creates a bounded reranker. lift may be nil when no lift feed exists.
func New(gen Generator, lift LiftReader, cfg config.RerankConfig, logger *zap.Logger) *Service {
	enabled := make(map[string]struct{}, len(cfg.EnabledSurfaces))
	for _, s := range cfg.EnabledSurfaces {
		enabled[s] = struct{}{}
	}
	return &Service{
		gen:     gen,
		lift:    lift,
		cfg:     cfg,
		window:  newLatencyWindow(cfg.WindowSize),
		enabled: enabled,
		logger:  logger,
	}
}

// Rerank refines the top TopN of ranked. The generator's output must be an
// exact permutation of the submitted ids; anything else is discarded. The
// accepted permutation is blended with weight Alpha so it can reorder within
// a bounded distance but never override the primary order outright.
func (s *Service) Rerank(ctx context.Context, query string, ranked []domain.RankedItem, surface string) Result {
	if _, ok := s.enabled[surface]; !ok {
		return s.skip(ranked, SkipSurfaceDisabled)
	}
	if s.lift != nil && s.lift.Lift(surface) <= 0 {
		return s.skip(ranked, SkipNonPositiveLift)
	}

	n := s.cfg.TopN
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < 2 {
		return s.skip(ranked, SkipTooFewItems)
	}

	budget := time.Duration(s.cfg.P95BudgetMs) * time.Millisecond
	if p95 := s.window.P95(); p95 > budget {
		s.logger.Warn("Rerank bypassed on latency budget",
			zap.Duration("p95", p95),
			zap.Duration("budget", budget))
		return s.skip(ranked, SkipLatencyBudget)
	}

	head := ranked[:n]
	permutation, err := s.generateOrder(ctx, query, head)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUpstreamTimeout):
			return s.skip(ranked, SkipTimeout)
		case errors.Is(err, domain.ErrRerankSchemaViolation):
			s.logger.Warn("Rerank output rejected", zap.Error(err))
			metrics.RerankOutcomeTotal.WithLabelValues("rejected").Inc()
			return Result{Items: ranked, Skip: SkipSchemaViolation}
		default:
			return s.skip(ranked, SkipGeneratorError)
		}
	}

	blended := blend(head, permutation, s.cfg.Alpha)
	out := make([]domain.RankedItem, 0, len(ranked))
	out = append(out, blended...)
	out = append(out, ranked[n:]...)

	metrics.RerankOutcomeTotal.WithLabelValues("applied").Inc()
	return Result{Items: out, Applied: true}
}

func (s *Service) skip(ranked []domain.RankedItem, reason string) Result {
	outcome := "bypassed"
	switch reason {
	case SkipTimeout:
		outcome = "timeout"
	case SkipGeneratorError:
		outcome = "error"
	}
	metrics.RerankOutcomeTotal.WithLabelValues(outcome).Inc()
	return Result{Items: ranked, Skip: reason}
}

// generateOrder calls the generator and validates the permutation. The call's
// wall time feeds the rolling latency window regardless of outcome.
func (s *Service) generateOrder(ctx context.Context, query string, head []domain.RankedItem) ([]string, error) {
	ids := make([]string, len(head))
	for i, it := range head {
		ids[i] = it.ItemID
	}

	var sb strings.Builder
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\nItem ids in current order:\n")
	for _, id := range ids {
		sb.WriteString("- ")
		sb.WriteString(id)
		sb.WriteString("\n")
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	raw, err := s.gen.Generate(genCtx, domain.GenerateRequest{
		System:    rerankSystemPrompt,
		User:      sb.String(),
		MaxTokens: s.cfg.MaxTokens,
	})
	s.window.Record(time.Since(start))

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrGeneratorError, err)
	}

	permutation, err := parseIDList(raw)
	if err != nil {
		return nil, err
	}
	if err := validatePermutation(ids, permutation); err != nil {
		return nil, err
	}
	return permutation, nil
}

// blend combines the primary order and the accepted permutation by positional
// scores: final(item) = primaryPos + alpha·rerankPos, where the top position
// of an n-item list is worth n. With a small alpha the permutation can nudge
// neighbors but an item ranked last can never displace the primary top.
func blend(head []domain.RankedItem, permutation []string, alpha float64) []domain.RankedItem {
	n := len(head)
	rerankPos := make(map[string]int, n)
	for j, id := range permutation {
		rerankPos[id] = n - j
	}

	type blendEntry struct {
		item  domain.RankedItem
		final float64
	}
	entries := make([]blendEntry, n)
	for i, it := range head {
		entries[i] = blendEntry{
			item:  it,
			final: float64(n-i) + alpha*float64(rerankPos[it.ItemID]),
		}
	}
	// Stable on the primary order: blended ties resolve to the primary sort.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].final > entries[j].final
	})

	out := make([]domain.RankedItem, n)
	for i, e := range entries {
		out[i] = e.item
	}
	return out
}

// parseIDList extracts a JSON string array, tolerating a markdown fence.
func parseIDList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	if idx := strings.Index(raw, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(raw[start:], "```"); end != -1 {
			raw = raw[start : start+end]
		}
	} else if idx := strings.Index(raw, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(raw[start:], "```"); end != -1 {
			raw = raw[start : start+end]
		}
	}

	var ids []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &ids); err != nil {
		return nil, fmt.Errorf("%w: not a json id array", domain.ErrRerankSchemaViolation)
	}
	return ids, nil
}

// validatePermutation enforces set(output) == set(input) and equal length.
func validatePermutation(input, output []string) error {
	if len(output) != len(input) {
		return fmt.Errorf("%w: got %d ids, want %d", domain.ErrRerankSchemaViolation, len(output), len(input))
	}
	want := make(map[string]struct{}, len(input))
	for _, id := range input {
		want[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(output))
	for _, id := range output {
		if _, ok := want[id]; !ok {
			return fmt.Errorf("%w: unknown id %q", domain.ErrRerankSchemaViolation, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate id %q", domain.ErrRerankSchemaViolation, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
