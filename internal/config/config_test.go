package config

import "testing"

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Artifacts: []ArtifactConfig{
			{IndexVersion: "v3", EmbeddingVersion: "emb-v3", Dim: 768, Space: "cosine"},
		},
		Pipeline: PipelineConfig{DefaultIndexVersion: "v3"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_MissingArtifacts(t *testing.T) {
	cfg := validConfig()
	cfg.Artifacts = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing artifacts")
	}
}

func TestValidate_InvalidSpace(t *testing.T) {
	cfg := validConfig()
	cfg.Artifacts[0].Space = "dot"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid space")
	}

	expected := `artifacts[0].space must be "cosine" or "l2", got "dot"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_DuplicateIndexVersion(t *testing.T) {
	cfg := validConfig()
	cfg.Artifacts = append(cfg.Artifacts, cfg.Artifacts[0])

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate index version")
	}
}

func TestValidate_UnknownDefaultIndexVersion(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.DefaultIndexVersion = "v99"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown default index version")
	}
}

func TestValidate_InvalidDegradedPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Rank.DegradedPolicy = "guess"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid degraded policy")
	}
}

func TestValidate_AlphaOutOfRange(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Rerank.Alpha = 1.5

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for alpha out of range")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Pipeline.Expansion.MaxVariants != 3 {
		t.Errorf("expected MaxVariants=3, got %d", cfg.Pipeline.Expansion.MaxVariants)
	}
	if cfg.Pipeline.Expansion.Version != "qe1" {
		t.Errorf("expected expansion version qe1, got %q", cfg.Pipeline.Expansion.Version)
	}
	if cfg.Pipeline.Retrieval.DeadlineMs != 30 {
		t.Errorf("expected DeadlineMs=30, got %d", cfg.Pipeline.Retrieval.DeadlineMs)
	}
	if cfg.Pipeline.Retrieval.MinCandidates != 3 {
		t.Errorf("expected MinCandidates=3, got %d", cfg.Pipeline.Retrieval.MinCandidates)
	}
	if cfg.Pipeline.Merge.Width != 200 {
		t.Errorf("expected Width=200, got %d", cfg.Pipeline.Merge.Width)
	}
	if cfg.Pipeline.Rank.AvailabilityThreshold != 0.75 {
		t.Errorf("expected AvailabilityThreshold=0.75, got %v", cfg.Pipeline.Rank.AvailabilityThreshold)
	}
	if cfg.Pipeline.Rank.DegradedPolicy != "score_then_popularity" {
		t.Errorf("unexpected degraded policy %q", cfg.Pipeline.Rank.DegradedPolicy)
	}
	if cfg.Pipeline.Rerank.Alpha != 0.2 {
		t.Errorf("expected Alpha=0.2, got %v", cfg.Pipeline.Rerank.Alpha)
	}
	if len(cfg.Pipeline.Rerank.EnabledSurfaces) != 0 {
		t.Error("rerank must be disabled by default")
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("RECSERVE_TEST_KEY", "secret")

	out := string(expandEnvVars([]byte("api_key: ${RECSERVE_TEST_KEY}")))
	if out != "api_key: secret" {
		t.Errorf("unexpected expansion: %q", out)
	}

	out = string(expandEnvVars([]byte("port: ${RECSERVE_TEST_MISSING:-8080}")))
	if out != "port: 8080" {
		t.Errorf("unexpected default expansion: %q", out)
	}
}
