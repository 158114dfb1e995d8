// Package config loads and validates the service configuration from YAML or
// JSON, with environment variables supplying secrets and deployment overrides.
package config

import (
	"fmt"
	"os"

	"github.com/mnemo-ai/mnemo"
)

// Defaults applied by Load when the file leaves fields unset.
const (
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8000
	DefaultGenerationProvider   = "openai"
	DefaultGenerationModel      = "gpt-4o-mini"
	DefaultEmbeddingModel       = "text-embedding-3-small"
	DefaultEmbeddingDimensions  = 1536
	DefaultWindowSize           = 20
	DefaultWorkers              = 4
	DefaultQueueSize            = 256
	DefaultLogLevel             = "info"
	DefaultSemanticDupThreshold = 0.12
)

// Config is the root service configuration.
type Config struct {
	Server ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`
	MCP    MCPConfig    `yaml:"mcp,omitempty" json:"mcp,omitempty"`
	Redis  RedisConfig  `yaml:"redis,omitempty" json:"redis,omitempty"`
	LLM    LLMConfig    `yaml:"llm,omitempty" json:"llm,omitempty"`
	Memory MemoryConfig `yaml:"memory,omitempty" json:"memory,omitempty"`
	Tasks  TasksConfig  `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Log    LogConfig    `yaml:"log,omitempty" json:"log,omitempty"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MCPConfig enables the MCP stdio surface. When enabled the process serves
// MCP instead of HTTP; logs go to stderr so stdout stays a clean transport.
type MCPConfig struct {
	Stdio bool `yaml:"stdio,omitempty" json:"stdio,omitempty"`
}

// RedisConfig selects the persistence backend. An empty URL selects the
// in-process stores, which do not survive restarts.
type RedisConfig struct {
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
}

// LLMConfig names the generation and embedding providers and their models.
// API keys come from the environment, never the config file.
type LLMConfig struct {
	GenerationProvider string `yaml:"generation_provider,omitempty" json:"generation_provider,omitempty"`
	GenerationModel    string `yaml:"generation_model,omitempty" json:"generation_model,omitempty"`
	EmbeddingModel     string `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty"`
	EmbeddingDims      int    `yaml:"embedding_dimensions,omitempty" json:"embedding_dimensions,omitempty"`
}

// MemoryConfig tunes the memory pipeline.
type MemoryConfig struct {
	// WindowSize bounds per-session messages before summarization.
	WindowSize int `yaml:"window_size,omitempty" json:"window_size,omitempty"`

	// SemanticDupThreshold is the max vector distance for near-duplicate
	// candidates.
	SemanticDupThreshold float64 `yaml:"semantic_dup_threshold,omitempty" json:"semantic_dup_threshold,omitempty"`

	// DisableExtraction turns off discrete fact extraction and tagging.
	DisableExtraction bool `yaml:"disable_extraction,omitempty" json:"disable_extraction,omitempty"`

	// DisableDedup indexes every record independently.
	DisableDedup bool `yaml:"disable_dedup,omitempty" json:"disable_dedup,omitempty"`
}

// TasksConfig tunes the background task runner.
type TasksConfig struct {
	Workers   int `yaml:"workers,omitempty" json:"workers,omitempty"`
	QueueSize int `yaml:"queue_size,omitempty" json:"queue_size,omitempty"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.LLM.GenerationProvider == "" {
		c.LLM.GenerationProvider = DefaultGenerationProvider
	}
	if c.LLM.GenerationModel == "" {
		c.LLM.GenerationModel = DefaultGenerationModel
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = DefaultEmbeddingModel
	}
	if c.LLM.EmbeddingDims == 0 {
		c.LLM.EmbeddingDims = DefaultEmbeddingDimensions
	}
	if c.Memory.WindowSize == 0 {
		c.Memory.WindowSize = DefaultWindowSize
	}
	if c.Memory.SemanticDupThreshold == 0 {
		c.Memory.SemanticDupThreshold = DefaultSemanticDupThreshold
	}
	if c.Tasks.Workers == 0 {
		c.Tasks.Workers = DefaultWorkers
	}
	if c.Tasks.QueueSize == 0 {
		c.Tasks.QueueSize = DefaultQueueSize
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("MNEMO_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MNEMO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks ranges and enumerations after defaults are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return mnemo.Errorf(mnemo.KindInvalidInput, "server port %d out of range", c.Server.Port)
	}
	switch c.LLM.GenerationProvider {
	case "openai", "anthropic":
	default:
		return mnemo.Errorf(mnemo.KindInvalidInput,
			"unknown generation provider %q", c.LLM.GenerationProvider)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return mnemo.Errorf(mnemo.KindInvalidInput, "unknown log level %q", c.Log.Level)
	}
	if c.Memory.WindowSize < 1 {
		return mnemo.Errorf(mnemo.KindInvalidInput,
			"window size must be positive, got %d", c.Memory.WindowSize)
	}
	if c.Tasks.Workers < 1 {
		return mnemo.Errorf(mnemo.KindInvalidInput,
			"task workers must be positive, got %d", c.Tasks.Workers)
	}
	return nil
}

// Load reads, defaults, env-overrides, and validates a configuration. An
// empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		parsed, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
