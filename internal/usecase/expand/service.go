package expand

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
)

const rewriteSystemPrompt = `You rewrite search queries for a product catalog.
Given one query, produce alternative phrasings that preserve its intent.
Output ONLY a JSON array of strings, no explanation: ["variant one", "variant two"]`

// Service turns one raw query into an ordered variant set: the normalized
// anchor first, then generated rewrites. Expansion is fail-open: any generator
// failure, timeout, or malformed output yields the anchor alone, never an
// error to the caller.
type Service struct {
	gen    Generator
	cache  Cache
	cfg    config.ExpansionConfig
	logger *zap.Logger
}

// New creates a query expansion service.
func New(gen Generator, cache Cache, cfg config.ExpansionConfig, logger *zap.Logger) *Service {
	return &Service{gen: gen, cache: cache, cfg: cfg, logger: logger}
}

// Expand normalizes the raw query and returns it with up to MaxVariants-1
// generated rewrites. Variants[0] is always the normalized anchor.
func (s *Service) Expand(ctx context.Context, rawQuery, surface, locale string) domain.QueryVariantSet {
	anchor := domain.NormalizeQuery(rawQuery, s.cfg.MaxQueryLen)
	anchorOnly := domain.QueryVariantSet{Variants: []string{anchor}}

	if anchor == "" || s.cfg.MaxVariants <= 1 {
		return anchorOnly
	}

	if set, ok := s.cache.Get(ctx, s.cfg.Version, surface, locale, anchor); ok {
		return set
	}

	rewrites, err := s.generateRewrites(ctx, anchor, surface, locale)
	if err != nil {
		s.logger.Warn("Query expansion failed, using anchor only",
			zap.String("surface", surface),
			zap.Error(err))
		return anchorOnly
	}
	if len(rewrites) == 0 {
		return anchorOnly
	}

	set := s.assemble(anchor, rewrites)
	s.cache.Put(ctx, s.cfg.Version, surface, locale, anchor, set)
	return set
}

func (s *Service) generateRewrites(ctx context.Context, anchor, surface, locale string) ([]string, error) {
	timeout := time.Duration(s.cfg.TimeoutMs) * time.Millisecond
	genCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	user := "Surface: " + surface + "\nLocale: " + locale + "\nQuery: " + anchor

	raw, err := s.gen.Generate(genCtx, domain.GenerateRequest{
		System:    rewriteSystemPrompt,
		User:      user,
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	return parseRewrites(raw)
}

// assemble builds the final set: anchor first, rewrites deduplicated in
// generation order, capped at MaxVariants total.
func (s *Service) assemble(anchor string, rewrites []string) domain.QueryVariantSet {
	variants := []string{anchor}
	seen := map[string]struct{}{anchor: {}}

	for _, r := range rewrites {
		if len(variants) >= s.cfg.MaxVariants {
			break
		}
		v := domain.NormalizeQuery(r, s.cfg.MaxQueryLen)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}
	return domain.QueryVariantSet{Variants: variants}
}

// parseRewrites extracts a JSON string array from generator output, tolerating
// a markdown code fence around the payload.
func parseRewrites(raw string) ([]string, error) {
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

	var rewrites []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &rewrites); err != nil {
		return nil, fmt.Errorf("%w: malformed rewrite output", domain.ErrGeneratorError)
	}
	return rewrites, nil
}
