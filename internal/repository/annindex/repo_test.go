package annindex

import (
	"context"
	"errors"
	"testing"

	"github.com/rosevoul/recserve/internal/db"
	"github.com/rosevoul/recserve/internal/domain"
)

type mockSearcher struct {
	result    *db.SearchResult
	err       error
	lastQuery *db.KNNQuery
}

func (m *mockSearcher) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastQuery = q
	return m.result, m.err
}

func TestSearch(t *testing.T) {
	ms := &mockSearcher{result: &db.SearchResult{
		Total: 2,
		Entries: []db.SearchEntry{
			{Key: domain.KeyPrefix + "item:712", Score: 0.93},
			{Key: domain.KeyPrefix + "item:45", Score: 0.88},
		},
	}}
	repo := New(ms)

	out, err := repo.Search(context.Background(), "idx:v3", []float32{0.1, 0.2}, 10, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(out))
	}
	if out[0].ItemID != "712" || out[0].Similarity != 0.93 {
		t.Errorf("key prefix should be stripped: %+v", out[0])
	}
	if ms.lastQuery.EFRuntime != 64 || ms.lastQuery.K != 10 {
		t.Errorf("budget not forwarded: %+v", ms.lastQuery)
	}
}

func TestSearch_Empty(t *testing.T) {
	repo := New(&mockSearcher{result: &db.SearchResult{}})

	out, err := repo.Search(context.Background(), "idx:v3", []float32{0.1}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no candidates, got %v", out)
	}
}

func TestSearch_Error(t *testing.T) {
	repo := New(&mockSearcher{err: errors.New("connection refused")})

	if _, err := repo.Search(context.Background(), "idx:v3", []float32{0.1}, 10, 0); err == nil {
		t.Fatal("expected error")
	}
}
