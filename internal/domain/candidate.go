package domain

// Candidate is one retrieved item. Similarity is an opaque ordering signal,
// never a calibrated probability.
type Candidate struct {
	ItemID     string
	Similarity float64
}

// DedupeFirstSeen removes duplicate item ids keeping the first occurrence,
// so the highest-priority source wins ties on which similarity survives.
func DedupeFirstSeen(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0:0]
	for _, c := range candidates {
		if _, ok := seen[c.ItemID]; ok {
			continue
		}
		seen[c.ItemID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Truncate caps a candidate list to width. Negative width is treated as zero.
func Truncate(candidates []Candidate, width int) []Candidate {
	if width < 0 {
		width = 0
	}
	if len(candidates) <= width {
		return candidates
	}
	return candidates[:width]
}
