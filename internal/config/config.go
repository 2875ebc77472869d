package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the recserve API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generative GenerativeConfig `yaml:"generative"`
	Artifacts  []ArtifactConfig `yaml:"artifacts"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds backing-store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
}

// GenerativeConfig holds generative text provider settings shared by query
// expansion and reranking.
type GenerativeConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ArtifactConfig describes one published ANN index version.
type ArtifactConfig struct {
	IndexVersion     string `yaml:"index_version"`
	EmbeddingVersion string `yaml:"embedding_version"`
	Dim              int    `yaml:"dim"`
	Space            string `yaml:"space"` // cosine, l2
	IndexName        string `yaml:"index_name"`
}

// PipelineConfig groups per-stage settings.
type PipelineConfig struct {
	DefaultIndexVersion string          `yaml:"default_index_version"`
	Expansion           ExpansionConfig `yaml:"expansion"`
	Retrieval           RetrievalConfig `yaml:"retrieval"`
	Merge               MergeConfig     `yaml:"merge"`
	Rank                RankConfig      `yaml:"rank"`
	Rerank              RerankConfig    `yaml:"rerank"`
}

// ExpansionConfig holds query expansion settings.
type ExpansionConfig struct {
	MaxVariants int    `yaml:"max_variants"`
	MaxQueryLen int    `yaml:"max_query_len"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"`
	MaxTokens   int    `yaml:"max_tokens"`
	Version     string `yaml:"version"` // part of the cache key contract
}

// RetrievalConfig holds per-lookup ANN search settings.
type RetrievalConfig struct {
	DeadlineMs    int `yaml:"deadline_ms"`
	MinCandidates int `yaml:"min_candidates"`
	EFRuntime     int `yaml:"ef_runtime"`
}

// MergeConfig holds multi-strategy merge settings.
type MergeConfig struct {
	Width int `yaml:"width"`
}

// RankConfig holds ranking settings, including the scoring model weights.
type RankConfig struct {
	AvailabilityPercentile float64            `yaml:"availability_percentile"`
	AvailabilityThreshold  float64            `yaml:"availability_threshold"`
	DegradedPolicy         string             `yaml:"degraded_policy"` // score_then_popularity, popularity_only
	ModelVersion           string             `yaml:"model_version"`
	ModelBias              float64            `yaml:"model_bias"`
	ModelWeights           map[string]float64 `yaml:"model_weights"`
	RequiredFeatures       []string           `yaml:"required_features"`
	OptionalFeatures       map[string]float64 `yaml:"optional_features"` // name -> default
}

// RerankConfig holds bounded reranking settings.
type RerankConfig struct {
	EnabledSurfaces []string `yaml:"enabled_surfaces"` // disabled unless listed
	Alpha           float64  `yaml:"alpha"`
	TopN            int      `yaml:"top_n"`
	TimeoutMs       int      `yaml:"timeout_ms"`
	MaxTokens       int      `yaml:"max_tokens"`
	P95BudgetMs     int      `yaml:"p95_budget_ms"`
	WindowSize      int      `yaml:"window_size"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 24 * 3600
	}

	p := &c.Pipeline
	if p.Expansion.MaxVariants <= 0 {
		p.Expansion.MaxVariants = 3
	}
	if p.Expansion.MaxQueryLen <= 0 {
		p.Expansion.MaxQueryLen = 256
	}
	if p.Expansion.TimeoutMs <= 0 {
		p.Expansion.TimeoutMs = 400
	}
	if p.Expansion.CacheTTLSec <= 0 {
		p.Expansion.CacheTTLSec = 6 * 3600
	}
	if p.Expansion.MaxTokens <= 0 {
		p.Expansion.MaxTokens = 128
	}
	if p.Expansion.Version == "" {
		p.Expansion.Version = "qe1"
	}
	if p.Retrieval.DeadlineMs <= 0 {
		p.Retrieval.DeadlineMs = 30
	}
	if p.Retrieval.MinCandidates <= 0 {
		p.Retrieval.MinCandidates = 3
	}
	if p.Retrieval.EFRuntime <= 0 {
		p.Retrieval.EFRuntime = 64
	}
	if p.Merge.Width <= 0 {
		p.Merge.Width = 200
	}
	if p.Rank.AvailabilityPercentile <= 0 {
		p.Rank.AvailabilityPercentile = 0.05
	}
	if p.Rank.AvailabilityThreshold <= 0 {
		p.Rank.AvailabilityThreshold = 0.75
	}
	if p.Rank.DegradedPolicy == "" {
		p.Rank.DegradedPolicy = "score_then_popularity"
	}
	if p.Rerank.Alpha <= 0 {
		p.Rerank.Alpha = 0.2
	}
	if p.Rerank.TopN <= 0 {
		p.Rerank.TopN = 20
	}
	if p.Rerank.TimeoutMs <= 0 {
		p.Rerank.TimeoutMs = 600
	}
	if p.Rerank.MaxTokens <= 0 {
		p.Rerank.MaxTokens = 256
	}
	if p.Rerank.P95BudgetMs <= 0 {
		p.Rerank.P95BudgetMs = 800
	}
	if p.Rerank.WindowSize <= 0 {
		p.Rerank.WindowSize = 128
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if len(c.Artifacts) == 0 {
		return fmt.Errorf("artifacts is required")
	}

	versions := make(map[string]struct{}, len(c.Artifacts))
	for i, a := range c.Artifacts {
		if a.IndexVersion == "" {
			return fmt.Errorf("artifacts[%d].index_version is required", i)
		}
		if _, dup := versions[a.IndexVersion]; dup {
			return fmt.Errorf("artifacts[%d]: duplicate index_version %q", i, a.IndexVersion)
		}
		versions[a.IndexVersion] = struct{}{}
		if a.Dim <= 0 {
			return fmt.Errorf("artifacts[%d].dim must be positive, got %d", i, a.Dim)
		}
		switch a.Space {
		case "cosine", "l2":
			// ok
		default:
			return fmt.Errorf("artifacts[%d].space must be \"cosine\" or \"l2\", got %q", i, a.Space)
		}
	}

	if c.Pipeline.DefaultIndexVersion == "" {
		return fmt.Errorf("pipeline.default_index_version is required")
	}
	if _, ok := versions[c.Pipeline.DefaultIndexVersion]; !ok {
		return fmt.Errorf("pipeline.default_index_version %q does not match any artifact",
			c.Pipeline.DefaultIndexVersion)
	}

	switch c.Pipeline.Rank.DegradedPolicy {
	case "score_then_popularity", "popularity_only":
		// ok
	default:
		return fmt.Errorf(
			"pipeline.rank.degraded_policy must be \"score_then_popularity\" or \"popularity_only\", got %q",
			c.Pipeline.Rank.DegradedPolicy,
		)
	}

	if t := c.Pipeline.Rank.AvailabilityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("pipeline.rank.availability_threshold must be in [0,1], got %v", t)
	}
	if p := c.Pipeline.Rank.AvailabilityPercentile; p <= 0 || p >= 1 {
		return fmt.Errorf("pipeline.rank.availability_percentile must be in (0,1), got %v", p)
	}
	if a := c.Pipeline.Rerank.Alpha; a <= 0 || a >= 1 {
		return fmt.Errorf("pipeline.rerank.alpha must be in (0,1), got %v", a)
	}

	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
