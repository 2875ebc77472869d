package rank

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/config"
	"github.com/rosevoul/recserve/internal/domain"
)

// --- Mocks ---

type mockFeatures struct {
	user        map[string]float64
	userErr     error
	item        map[string]map[string]float64
	itemErr     error
	interact    map[string]map[string]float64
	interactErr error
}

func (m *mockFeatures) UserFeatures(_ context.Context, _ string) (map[string]float64, error) {
	return m.user, m.userErr
}

func (m *mockFeatures) ItemFeatures(_ context.Context, _ []string) (map[string]map[string]float64, error) {
	return m.item, m.itemErr
}

func (m *mockFeatures) InteractionFeatures(_ context.Context, _ string, _ []string) (map[string]map[string]float64, error) {
	return m.interact, m.interactErr
}

type mockPopularity struct {
	scores map[string]float64
	err    error
}

func (m *mockPopularity) Scores(_ context.Context, itemIDs []string) (map[string]float64, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]float64, len(itemIDs))
	for _, id := range itemIDs {
		out[id] = m.scores[id]
	}
	return out, nil
}

// --- Helpers ---

func baseCfg() config.RankConfig {
	return config.RankConfig{
		AvailabilityPercentile: 0.05,
		AvailabilityThreshold:  0.75,
		DegradedPolicy:         PolicyScoreThenPopularity,
		ModelVersion:           "rank-v1",
	}
}

// similarityModel scores by retrieval similarity alone.
func similarityModel() *LinearModel {
	return NewLinearModel("rank-v1", 0, map[string]float64{similarityFeature: 1.0})
}

func candidates(pairs ...any) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, domain.Candidate{
			ItemID:     pairs[i].(string),
			Similarity: pairs[i+1].(float64),
		})
	}
	return out
}

// --- Tests ---

func TestRank_OrdersByScore(t *testing.T) {
	svc := New(&mockFeatures{}, &mockPopularity{}, similarityModel(), baseCfg(), zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1",
		candidates("712", 1.82, "45", 1.75, "98", 1.61), Context{Surface: "search"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.ModePrimary {
		t.Fatalf("mode = %s, want primary", res.Mode)
	}
	if got, want := res.ItemIDs(), []string{"712", "45", "98"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if res.ModelVersion != "rank-v1" {
		t.Errorf("model version = %s", res.ModelVersion)
	}
}

func TestRank_TieBrokenByPopularity(t *testing.T) {
	pop := &mockPopularity{scores: map[string]float64{"a": 10, "b": 20}}
	svc := New(&mockFeatures{}, pop, similarityModel(), baseCfg(), zap.NewNop())

	// Equal scores; b is more popular and must sort first.
	res, err := svc.Rank(context.Background(), "u1",
		candidates("a", 1.75, "b", 1.75), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := res.ItemIDs(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRank_FullTieKeepsInputOrder(t *testing.T) {
	svc := New(&mockFeatures{}, &mockPopularity{}, similarityModel(), baseCfg(), zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1",
		candidates("x", 1.0, "y", 1.0, "z", 1.0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := res.ItemIDs(), []string{"x", "y", "z"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRank_Deterministic(t *testing.T) {
	pop := &mockPopularity{scores: map[string]float64{"a": 5, "b": 5, "c": 9}}
	svc := New(&mockFeatures{}, pop, similarityModel(), baseCfg(), zap.NewNop())
	in := candidates("a", 1.2, "b", 1.2, "c", 1.2, "d", 0.4)

	first, err := svc.Rank(context.Background(), "u1", in, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := svc.Rank(context.Background(), "u1", in, Context{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(first.Items, again.Items) {
			t.Fatalf("run %d differs: %v vs %v", i, first.Items, again.Items)
		}
	}
}

func TestRank_DegradedStillScores(t *testing.T) {
	cfg := baseCfg()
	cfg.RequiredFeatures = []string{"item.ctr", "item.cvr"}

	// Every row has one of two required features: availability 0.5 across
	// the batch, below the 0.75 threshold.
	feats := &mockFeatures{item: map[string]map[string]float64{
		"a": {"ctr": 0.1},
		"b": {"ctr": 0.3},
	}}
	svc := New(feats, &mockPopularity{}, similarityModel(), cfg, zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1", candidates("a", 1.0, "b", 2.0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.ModePrimaryDegraded {
		t.Fatalf("mode = %s, want primary-degraded", res.Mode)
	}
	if res.Availability != 0.5 {
		t.Fatalf("availability = %v, want 0.5", res.Availability)
	}
	// score_then_popularity still ranks by model score.
	if got, want := res.ItemIDs(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRank_PopularityOnlyPolicy(t *testing.T) {
	cfg := baseCfg()
	cfg.RequiredFeatures = []string{"item.ctr"}
	cfg.DegradedPolicy = PolicyPopularityOnly

	pop := &mockPopularity{scores: map[string]float64{"a": 3, "b": 7, "c": 5}}
	svc := New(&mockFeatures{}, pop, similarityModel(), cfg, zap.NewNop())

	// Model would rank a first (highest similarity); fallback must ignore it.
	res, err := svc.Rank(context.Background(), "u1",
		candidates("a", 9.0, "b", 1.0, "c", 2.0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != domain.ModeFallback {
		t.Fatalf("mode = %s, want fallback", res.Mode)
	}
	if got, want := res.ItemIDs(), []string{"b", "c", "a"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRank_OptionalDefaultsApplied(t *testing.T) {
	cfg := baseCfg()
	cfg.OptionalFeatures = map[string]float64{"interact.recent_clicks": 2.0}

	model := NewLinearModel("rank-v1", 0, map[string]float64{
		"interact.recent_clicks": 1.0,
	})
	feats := &mockFeatures{interact: map[string]map[string]float64{
		"a": {"recent_clicks": 10},
		// b has no interaction row: the default must fill in, not "unknown".
	}}
	svc := New(feats, &mockPopularity{}, model, cfg, zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1", candidates("a", 0.0, "b", 0.0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Items[0].ItemID != "a" || res.Items[0].Score != 10 {
		t.Fatalf("item a score = %+v", res.Items[0])
	}
	if res.Items[1].ItemID != "b" || res.Items[1].Score != 2 {
		t.Fatalf("item b should score the default: %+v", res.Items[1])
	}
}

func TestRank_FeatureStoreFailureDegrades(t *testing.T) {
	cfg := baseCfg()
	cfg.RequiredFeatures = []string{"item.ctr"}
	cfg.DegradedPolicy = PolicyScoreThenPopularity

	feats := &mockFeatures{itemErr: errors.New("store down")}
	svc := New(feats, &mockPopularity{}, similarityModel(), cfg, zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1", candidates("a", 1.0, "b", 2.0), Context{})
	if err != nil {
		t.Fatalf("store failure must not error the rank stage: %v", err)
	}
	if res.Mode != domain.ModePrimaryDegraded {
		t.Fatalf("mode = %s, want primary-degraded", res.Mode)
	}
	if res.Availability != 0 {
		t.Fatalf("availability = %v, want 0", res.Availability)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected full ranked list, got %v", res.Items)
	}
}

func TestRank_PopularityFailureZeroTieBreak(t *testing.T) {
	pop := &mockPopularity{err: errors.New("down")}
	svc := New(&mockFeatures{}, pop, similarityModel(), baseCfg(), zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1", candidates("a", 2.0, "b", 1.0), Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := res.ItemIDs(), []string{"a", "b"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestRank_EmptyCandidates(t *testing.T) {
	svc := New(&mockFeatures{}, &mockPopularity{}, similarityModel(), baseCfg(), zap.NewNop())

	res, err := svc.Rank(context.Background(), "u1", nil, Context{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Items) != 0 || res.Mode != domain.ModePrimary || res.Availability != 1.0 {
		t.Fatalf("unexpected empty-input result: %+v", res)
	}
}
