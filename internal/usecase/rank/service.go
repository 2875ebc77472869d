package rank

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
	"github.com/rosevoul/recserve/internal/metrics"
)

// Degradation policies for low batch feature availability.
const (
	PolicyScoreThenPopularity = "score_then_popularity"
	PolicyPopularityOnly      = "popularity_only"
)

// Feature name prefixes used when joining the three sources into one row.
// Model weights and required/optional feature lists in config use these
// prefixed names; the retrieval similarity joins unprefixed as "similarity".
const (
	userFeaturePrefix     = "user."
	itemFeaturePrefix     = "item."
	interactFeaturePrefix = "interact."
	similarityFeature     = "similarity"
)

// Context is the request context joined into each feature row.
type Context struct {
	Surface string
	Locale  string
}

// Service ranks merged candidates: joins features, gates on batch
// availability, scores with a versioned model, and sorts deterministically.
// Feature source failures degrade availability instead of erroring; the
// output is always a valid ordered list tagged with how it was produced.
type Service struct {
	features   FeatureReader
	popularity PopularityReader
	model      Model
	spec       domain.FeatureSpec
	cfg        config.RankConfig
	logger     *zap.Logger
}

// New creates a ranking service.
func New(features FeatureReader, popularity PopularityReader, model Model, cfg config.RankConfig, logger *zap.Logger) *Service {
	return &Service{
		features:   features,
		popularity: popularity,
		model:      model,
		spec: domain.FeatureSpec{
			Required: cfg.RequiredFeatures,
			Optional: cfg.OptionalFeatures,
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Rank orders candidates for one user. Sort is total and deterministic:
// score descending, then popularity descending, then original candidate
// order. Scores are comparable only within the returned ModelVersion.
func (s *Service) Rank(ctx context.Context, userID string, candidates []domain.Candidate, reqCtx Context) (domain.RankResult, error) {
	if len(candidates) == 0 {
		return domain.RankResult{
			Mode:         domain.ModePrimary,
			ModelVersion: s.model.Version(),
			Availability: 1.0,
		}, nil
	}

	itemIDs := make([]string, len(candidates))
	for i, c := range candidates {
		itemIDs[i] = c.ItemID
	}

	rows := s.joinFeatures(ctx, userID, candidates)

	avails := make([]float64, len(rows))
	for i, row := range rows {
		avails[i] = s.spec.Availability(row)
		s.spec.ApplyDefaults(row)
	}
	health := domain.Percentile(avails, s.cfg.AvailabilityPercentile)

	popScores, err := s.popularity.Scores(ctx, itemIDs)
	if err != nil {
		s.logger.Warn("Popularity scores unavailable, tie-break degraded to zero", zap.Error(err))
		popScores = map[string]float64{}
	}

	mode := domain.ModePrimary
	if health < s.cfg.AvailabilityThreshold {
		s.logger.Warn("Batch feature availability below threshold",
			zap.String("surface", reqCtx.Surface),
			zap.Float64("availability", health),
			zap.Float64("threshold", s.cfg.AvailabilityThreshold),
			zap.String("policy", s.cfg.DegradedPolicy))
		if s.cfg.DegradedPolicy == PolicyPopularityOnly {
			mode = domain.ModeFallback
		} else {
			mode = domain.ModePrimaryDegraded
		}
	}
	metrics.RankModeTotal.WithLabelValues(string(mode)).Inc()

	var items []domain.RankedItem
	if mode == domain.ModeFallback {
		items = s.popularityOrder(candidates, popScores)
	} else {
		items = s.scoredOrder(rows, popScores)
	}

	return domain.RankResult{
		Items:        items,
		Mode:         mode,
		ModelVersion: s.model.Version(),
		Availability: health,
	}, nil
}

// joinFeatures assembles one row per candidate from the user, item, and
// interaction stores plus the retrieval similarity. A failed source is
// logged and treated as absent; missing required fields then show up in
// the availability signal instead of failing the request.
func (s *Service) joinFeatures(ctx context.Context, userID string, candidates []domain.Candidate) []domain.FeatureRow {
	itemIDs := make([]string, len(candidates))
	for i, c := range candidates {
		itemIDs[i] = c.ItemID
	}

	userFeats, err := s.features.UserFeatures(ctx, userID)
	if err != nil {
		s.logger.Warn("User feature read failed", zap.String("user_id", userID), zap.Error(err))
		userFeats = nil
	}
	itemFeats, err := s.features.ItemFeatures(ctx, itemIDs)
	if err != nil {
		s.logger.Warn("Item feature read failed", zap.Error(err))
		itemFeats = nil
	}
	interactFeats, err := s.features.InteractionFeatures(ctx, userID, itemIDs)
	if err != nil {
		s.logger.Warn("Interaction feature read failed", zap.String("user_id", userID), zap.Error(err))
		interactFeats = nil
	}

	rows := make([]domain.FeatureRow, len(candidates))
	for i, c := range candidates {
		features := make(map[string]float64)
		for name, v := range userFeats {
			features[userFeaturePrefix+name] = v
		}
		for name, v := range itemFeats[c.ItemID] {
			features[itemFeaturePrefix+name] = v
		}
		for name, v := range interactFeats[c.ItemID] {
			features[interactFeaturePrefix+name] = v
		}
		features[similarityFeature] = c.Similarity
		rows[i] = domain.FeatureRow{ItemID: c.ItemID, Features: features}
	}
	return rows
}

// scoredOrder scores every row and sorts by score, popularity, input order.
func (s *Service) scoredOrder(rows []domain.FeatureRow, popScores map[string]float64) []domain.RankedItem {
	items := make([]domain.RankedItem, len(rows))
	for i, row := range rows {
		items[i] = domain.RankedItem{
			ItemID:      row.ItemID,
			Score:       s.model.Score(row.Features),
			TieBreakKey: popScores[row.ItemID],
		}
	}
	sortRanked(items)
	return items
}

// popularityOrder bypasses scoring entirely: popularity descending, input
// order on ties. Score carries the popularity value for transparency.
func (s *Service) popularityOrder(candidates []domain.Candidate, popScores map[string]float64) []domain.RankedItem {
	items := make([]domain.RankedItem, len(candidates))
	for i, c := range candidates {
		pop := popScores[c.ItemID]
		items[i] = domain.RankedItem{ItemID: c.ItemID, Score: pop, TieBreakKey: pop}
	}
	sortRanked(items)
	return items
}

// sortRanked applies the deterministic total order: score descending,
// tie-break key descending, original order preserved on full ties.
func sortRanked(items []domain.RankedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].TieBreakKey > items[j].TieBreakKey
	})
}
