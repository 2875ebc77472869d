package domain

import (
	"math"
	"sort"
)

// FeatureRow is the joined feature mapping for one (user, item, context) triple.
type FeatureRow struct {
	ItemID   string
	Features map[string]float64
}

// FeatureSpec declares which feature names a model requires and which are
// optional with explicit defaults. A missing required field lowers the row's
// availability; a missing optional field is filled with its default, never
// with "unknown".
type FeatureSpec struct {
	Required []string
	Optional map[string]float64
}

// Availability returns the fraction of required fields present in [0,1].
// A spec with no required fields counts as fully available.
func (s FeatureSpec) Availability(row FeatureRow) float64 {
	if len(s.Required) == 0 {
		return 1.0
	}
	present := 0
	for _, name := range s.Required {
		if _, ok := row.Features[name]; ok {
			present++
		}
	}
	return float64(present) / float64(len(s.Required))
}

// ApplyDefaults fills missing optional fields in place.
func (s FeatureSpec) ApplyDefaults(row FeatureRow) {
	for name, def := range s.Optional {
		if _, ok := row.Features[name]; !ok {
			row.Features[name] = def
		}
	}
}

// Percentile returns the p-th percentile (0 < p < 1) of values using
// lower-nearest-rank, the conservative choice for a batch health signal.
// Returns 1.0 for an empty batch so an empty join never trips degradation.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 1.0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Floor(p * float64(len(sorted))))
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
