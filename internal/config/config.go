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

// Config holds the ragcore API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Index     IndexConfig     `yaml:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
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

// EmbeddingConfig holds embedding provider and cache settings.
type EmbeddingConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Model         string `yaml:"model"`
	Dimensions    int    `yaml:"dimensions"`
	CacheCapacity int    `yaml:"cache_capacity"`
	BatchSize     int    `yaml:"batch_size"`
	TimeoutSec    int    `yaml:"timeout_sec"`
}

// LLMConfig holds inference gateway settings. Backend selects the active
// adapter by name; the per-backend sections configure the adapters.
type LLMConfig struct {
	Backend     string           `yaml:"backend"` // openai, ollama
	OpenAI      OpenAIConfig     `yaml:"openai"`
	Ollama      OllamaConfig     `yaml:"ollama"`
	RateLimit   int              `yaml:"rate_limit_per_minute"`
	MaxRetries  int              `yaml:"max_retries"`
	BaseDelayMs int              `yaml:"retry_base_delay_ms"`
	TimeoutSec  int              `yaml:"timeout_sec"`
	Defaults    SamplingDefaults `yaml:"defaults"`
}

// SamplingDefaults holds default sampling parameters for generation.
type SamplingDefaults struct {
	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// OpenAIConfig holds settings for the OpenAI-compatible chat backend.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OllamaConfig holds settings for the Ollama chat backend.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	DataDir      string `yaml:"data_dir"`
	LoadOnStart  bool   `yaml:"load_on_start"`
	MaxBatchSize int    `yaml:"max_batch_size"`
}

// RetrievalConfig holds ranking and context assembly settings.
type RetrievalConfig struct {
	DefaultTopK        int      `yaml:"default_top_k"`
	RelevanceThreshold float64  `yaml:"relevance_threshold"`
	TrustedBoost       float64  `yaml:"trusted_boost"`
	TrustedSources     []string `yaml:"trusted_sources"`
	MaxContextLength   int      `yaml:"max_context_length"`
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// DefaultTrustedSources lists authoritative regulatory origins that receive
// the trusted-source ranking boost when none are configured.
var DefaultTrustedSources = []string{
	"dgft.gov.in",
	"cbic.gov.in",
	"fda.gov",
	"cbp.gov",
	"trade.gov",
	"europa.eu",
	"wto.org",
	"wcoomd.org",
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Embedding.CacheCapacity <= 0 {
		c.Embedding.CacheCapacity = 128
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.LLM.Backend == "" {
		c.LLM.Backend = "openai"
	}
	if c.LLM.RateLimit <= 0 {
		c.LLM.RateLimit = 50
	}
	if c.LLM.MaxRetries <= 0 {
		c.LLM.MaxRetries = 3
	}
	if c.LLM.BaseDelayMs <= 0 {
		c.LLM.BaseDelayMs = 1000
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 120
	}
	if c.LLM.Defaults.Temperature <= 0 {
		c.LLM.Defaults.Temperature = 0.7
	}
	if c.LLM.Defaults.MaxTokens <= 0 {
		c.LLM.Defaults.MaxTokens = 1024
	}
	if c.Index.DataDir == "" {
		c.Index.DataDir = "data/index"
	}
	if c.Index.MaxBatchSize <= 0 {
		c.Index.MaxBatchSize = 100
	}
	if c.Retrieval.DefaultTopK <= 0 {
		c.Retrieval.DefaultTopK = 5
	}
	if c.Retrieval.RelevanceThreshold <= 0 {
		c.Retrieval.RelevanceThreshold = 0.3
	}
	if c.Retrieval.TrustedBoost <= 0 {
		c.Retrieval.TrustedBoost = 0.1
	}
	if len(c.Retrieval.TrustedSources) == 0 {
		c.Retrieval.TrustedSources = DefaultTrustedSources
	}
	if c.Retrieval.MaxContextLength <= 0 {
		c.Retrieval.MaxContextLength = 4000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required")
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required")
	}
	switch c.LLM.Backend {
	case "openai", "ollama":
		// ok
	default:
		return fmt.Errorf("llm.backend must be \"openai\" or \"ollama\", got %q", c.LLM.Backend)
	}
	if c.Retrieval.RelevanceThreshold > 1 {
		return fmt.Errorf("retrieval.relevance_threshold must be <= 1, got %g", c.Retrieval.RelevanceThreshold)
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
