// Package config provides unified configuration loading for the engine:
// defaults, then a YAML file, then environment variable overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("finsight.yaml").
//	    WithEnvPrefix("FINSIGHT").
//	    Load()
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Chunking     ChunkingConfig     `yaml:"chunking"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Qdrant       QdrantConfig       `yaml:"qdrant"`
	Redis        RedisConfig        `yaml:"redis"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	LLM          LLMConfig          `yaml:"llm"`
	Log          LogConfig          `yaml:"log"`
}

// ChunkingConfig bounds semantic chunk sizes in tokens.
type ChunkingConfig struct {
	LowerBound     int    `yaml:"lower_bound"`
	UpperBound     int    `yaml:"upper_bound"`
	TokenizerModel string `yaml:"tokenizer_model"`
}

// RetrievalConfig tunes the retrieval gateway.
type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	MaxTopK         int     `yaml:"max_top_k"`
	SimilarityFloor float64 `yaml:"similarity_floor"`
}

// OrchestratorConfig tunes routing, validation and retries.
type OrchestratorConfig struct {
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
	MaxRetries          int           `yaml:"max_retries"` // per sub-query
	QuestionTimeout     time.Duration `yaml:"question_timeout"`
	BackoffBase         time.Duration `yaml:"backoff_base"`
	BackoffMax          time.Duration `yaml:"backoff_max"`
	CollaboratorRetries int           `yaml:"collaborator_retries"`
}

// QdrantConfig configures the Qdrant vector store collaborator.
type QdrantConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	APIKey     string        `yaml:"api_key"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RedisConfig configures the answer cache.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// LedgerConfig configures the ingestion ledger database.
type LedgerConfig struct {
	Path string `yaml:"path"` // sqlite file path; ":memory:" for tests
}

// LLMConfig configures the language-model collaborator.
type LLMConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RatePerSec float64       `yaml:"rate_per_sec"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the conservative defaults. The confidence aggregation
// and similarity floor are tunable; defaults favor caution over recall.
func DefaultConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			LowerBound:     200,
			UpperBound:     500,
			TokenizerModel: "gpt-4o",
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			MaxTopK:         20,
			SimilarityFloor: 0.25,
		},
		Orchestrator: OrchestratorConfig{
			ConfidenceThreshold: 0.6,
			MaxRetries:          2,
			QuestionTimeout:     90 * time.Second,
			BackoffBase:         500 * time.Millisecond,
			BackoffMax:          8 * time.Second,
			CollaboratorRetries: 3,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6333,
			Collection: "finsight_chunks",
			Timeout:    15 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  30 * time.Minute,
		},
		Ledger: LedgerConfig{
			Path: "finsight.db",
		},
		LLM: LLMConfig{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			RatePerSec: 2,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.LowerBound <= 0 || c.Chunking.UpperBound <= c.Chunking.LowerBound {
		return fmt.Errorf("chunking bounds must satisfy 0 < lower < upper, got [%d, %d]",
			c.Chunking.LowerBound, c.Chunking.UpperBound)
	}
	if c.Retrieval.MaxTopK <= 0 {
		return fmt.Errorf("retrieval max_top_k must be positive, got %d", c.Retrieval.MaxTopK)
	}
	if c.Orchestrator.ConfidenceThreshold < 0 || c.Orchestrator.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be in [0,1], got %f", c.Orchestrator.ConfidenceThreshold)
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", c.Orchestrator.MaxRetries)
	}
	return nil
}

// Loader loads configuration with a builder-style API.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "FINSIGHT"}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves configuration. Precedence: defaults, then YAML file, then
// environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected fields from environment variables using the
// FINSIGHT_SECTION_FIELD convention.
func (l *Loader) applyEnv(cfg *Config) {
	envStr := func(key string, dst *string) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	envFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	envDur := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	envInt("CHUNKING_LOWER_BOUND", &cfg.Chunking.LowerBound)
	envInt("CHUNKING_UPPER_BOUND", &cfg.Chunking.UpperBound)
	envStr("CHUNKING_TOKENIZER_MODEL", &cfg.Chunking.TokenizerModel)

	envInt("RETRIEVAL_TOP_K", &cfg.Retrieval.TopK)
	envFloat("RETRIEVAL_SIMILARITY_FLOOR", &cfg.Retrieval.SimilarityFloor)

	envFloat("ORCHESTRATOR_CONFIDENCE_THRESHOLD", &cfg.Orchestrator.ConfidenceThreshold)
	envInt("ORCHESTRATOR_MAX_RETRIES", &cfg.Orchestrator.MaxRetries)
	envDur("ORCHESTRATOR_QUESTION_TIMEOUT", &cfg.Orchestrator.QuestionTimeout)

	envStr("QDRANT_HOST", &cfg.Qdrant.Host)
	envInt("QDRANT_PORT", &cfg.Qdrant.Port)
	envStr("QDRANT_API_KEY", &cfg.Qdrant.APIKey)
	envStr("QDRANT_COLLECTION", &cfg.Qdrant.Collection)

	envStr("REDIS_ADDR", &cfg.Redis.Addr)
	envStr("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	envStr("LEDGER_PATH", &cfg.Ledger.Path)

	envStr("LLM_BASE_URL", &cfg.LLM.BaseURL)
	envStr("LLM_API_KEY", &cfg.LLM.APIKey)
	envStr("LLM_MODEL", &cfg.LLM.Model)
	envDur("LLM_TIMEOUT", &cfg.LLM.Timeout)

	envStr("LOG_LEVEL", &cfg.Log.Level)
	envStr("LOG_FORMAT", &cfg.Log.Format)
}

// NormalizeLevel maps a config level string to a canonical value.
func NormalizeLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return strings.ToLower(level)
	default:
		return "info"
	}
}
