package domain

// Mode tags how a ranked list was produced.
type Mode string

const (
	// ModePrimary means the scoring model ran on healthy features.
	ModePrimary Mode = "primary"
	// ModePrimaryDegraded means the model still ran but batch feature
	// availability was below threshold.
	ModePrimaryDegraded Mode = "primary-degraded"
	// ModeFallback means scoring was bypassed for a deterministic heuristic order.
	ModeFallback Mode = "fallback"
)

// RankedItem is one scored candidate. Score is comparable only within a single
// model version; comparing across versions is undefined behavior.
type RankedItem struct {
	ItemID      string
	Score       float64
	TieBreakKey float64
}

// RankResult is the ordered output of the ranking stage.
type RankResult struct {
	Items        []RankedItem
	Mode         Mode
	ModelVersion string
	// Availability is the batch feature health signal that drove Mode.
	Availability float64
}

// ItemIDs returns the ordered ids of the result.
func (r RankResult) ItemIDs() []string {
	ids := make([]string, len(r.Items))
	for i, it := range r.Items {
		ids[i] = it.ItemID
	}
	return ids
}
