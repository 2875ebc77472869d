package rank

import "context"

// FeatureReader reads per-user, per-item, and per-interaction feature rows.
// Absence is a legitimate value: missing rows come back empty, not as errors.
type FeatureReader interface {
	UserFeatures(ctx context.Context, userID string) (map[string]float64, error)
	ItemFeatures(ctx context.Context, itemIDs []string) (map[string]map[string]float64, error)
	InteractionFeatures(ctx context.Context, userID string, itemIDs []string) (map[string]map[string]float64, error)
}

// PopularityReader reads popularity scores: the tie-break signal and the
// deterministic fallback order.
type PopularityReader interface {
	Scores(ctx context.Context, itemIDs []string) (map[string]float64, error)
}

// Model scores one joined feature row. Scores order items within a single
// model version only; they are never calibrated probabilities.
type Model interface {
	Score(features map[string]float64) float64
	Version() string
}
