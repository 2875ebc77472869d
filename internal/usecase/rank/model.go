package rank

// LinearModel scores a feature row as bias + Σ weight·feature. Features
// without a weight are ignored; weighted features missing from the row
// contribute nothing. The model is trained offline on a pairwise ordering
// loss, so scores are relative-order signals for one version only.
type LinearModel struct {
	version string
	bias    float64
	weights map[string]float64
}

// NewLinearModel creates a linear scoring model.
func NewLinearModel(version string, bias float64, weights map[string]float64) *LinearModel {
	return &LinearModel{version: version, bias: bias, weights: weights}
}

// Score computes the model output for one row.
func (m *LinearModel) Score(features map[string]float64) float64 {
	score := m.bias
	for name, w := range m.weights {
		if v, ok := features[name]; ok {
			score += w * v
		}
	}
	return score
}

// Version returns the model version id.
func (m *LinearModel) Version() string {
	return m.version
}
