package domain

import "testing"

func TestDedupeFirstSeen_KeepsFirstOccurrence(t *testing.T) {
	in := []Candidate{
		{ItemID: "a", Similarity: 0.9},
		{ItemID: "b", Similarity: 0.8},
		{ItemID: "a", Similarity: 0.5},
		{ItemID: "c", Similarity: 0.7},
	}

	out := DedupeFirstSeen(in)

	if len(out) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(out))
	}
	if out[0].ItemID != "a" || out[0].Similarity != 0.9 {
		t.Errorf("first occurrence of a should survive with its similarity, got %+v", out[0])
	}
	if out[1].ItemID != "b" || out[2].ItemID != "c" {
		t.Errorf("order not preserved: %+v", out)
	}
}

func TestDedupeFirstSeen_Empty(t *testing.T) {
	if out := DedupeFirstSeen(nil); len(out) != 0 {
		t.Errorf("expected empty output, got %v", out)
	}
}

func TestTruncate(t *testing.T) {
	in := []Candidate{{ItemID: "a"}, {ItemID: "b"}, {ItemID: "c"}}

	if out := Truncate(in, 2); len(out) != 2 {
		t.Errorf("expected 2, got %d", len(out))
	}
	if out := Truncate(in, 5); len(out) != 3 {
		t.Errorf("width above len should be a no-op, got %d", len(out))
	}
	if out := Truncate(in, -1); len(out) != 0 {
		t.Errorf("negative width should yield empty, got %d", len(out))
	}
}
