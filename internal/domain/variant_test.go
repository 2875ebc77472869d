package domain

import "testing"

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		maxLen int
		want   string
	}{
		{"trims", "  red shoes  ", 256, "red shoes"},
		{"collapses runs", "red\t\t shoes\n for   running", 256, "red shoes for running"},
		{"truncates", "abcdefgh", 4, "abcd"},
		{"empty", "   ", 256, ""},
		{"no limit", "red shoes", 0, "red shoes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuery(tt.raw, tt.maxLen); got != tt.want {
				t.Errorf("NormalizeQuery(%q, %d) = %q, want %q", tt.raw, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestQueryVariantSet_Anchor(t *testing.T) {
	s := QueryVariantSet{Variants: []string{"red shoes", "running shoes"}}
	if s.Anchor() != "red shoes" {
		t.Errorf("anchor should be the first variant, got %q", s.Anchor())
	}
	if (QueryVariantSet{}).Anchor() != "" {
		t.Error("empty set anchor should be empty string")
	}
}
