package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. GENSERVE_LOG_LEVEL.
const EnvPrefix = "GENSERVE_"

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by WithDefaults.
type Config struct {
	Backend           string       `json:"backend" yaml:"backend" toml:"backend" env:"BACKEND"`
	Concurrency       string       `json:"concurrency" yaml:"concurrency" toml:"concurrency" env:"CONCURRENCY"`
	LogLevel          string       `json:"log_level" yaml:"log_level" toml:"log_level" env:"LOG_LEVEL"`
	StrictContentType bool         `json:"strict_content_type" yaml:"strict_content_type" toml:"strict_content_type" env:"STRICT_CONTENT_TYPE"`
	MaxBodyBytes      int64        `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	MetricsAddr       string       `json:"metrics_addr" yaml:"metrics_addr" toml:"metrics_addr" env:"METRICS_ADDR"`
	CORS              CORSConfig   `json:"cors" yaml:"cors" toml:"cors" envPrefix:"CORS_"`
	Llama             LlamaConfig  `json:"llama" yaml:"llama" toml:"llama" envPrefix:"LLAMA_"`
	OpenAI            OpenAIConfig `json:"openai" yaml:"openai" toml:"openai" envPrefix:"OPENAI_"`
}

// CORSConfig is opt-in; nothing is added to responses unless Enabled.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled" env:"ENABLED"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods" env:"ALLOWED_METHODS"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers" env:"ALLOWED_HEADERS"`
}

// LlamaConfig tunes the in-process llama.cpp backend.
type LlamaConfig struct {
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size" env:"CONTEXT_SIZE"`
	Threads     int `json:"threads" yaml:"threads" toml:"threads" env:"THREADS"`
	GPULayers   int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" env:"GPU_LAYERS"`
}

// OpenAIConfig points the openai backend at an OpenAI-compatible server.
type OpenAIConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url" env:"BASE_URL"`
	APIKey  string `json:"api_key" yaml:"api_key" toml:"api_key" env:"API_KEY"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays GENSERVE_* environment variables onto cfg. Variables that
// are not set leave the corresponding field untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// WithDefaults returns a copy of cfg with unset fields filled in.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = "llama"
	}
	if c.Concurrency == "" {
		c.Concurrency = "serial"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "http://127.0.0.1:8080/v1/"
	}
	if c.CORS.Enabled {
		if len(c.CORS.AllowedOrigins) == 0 {
			c.CORS.AllowedOrigins = []string{"*"}
		}
		if len(c.CORS.AllowedMethods) == 0 {
			c.CORS.AllowedMethods = []string{"POST", "OPTIONS"}
		}
		if len(c.CORS.AllowedHeaders) == 0 {
			c.CORS.AllowedHeaders = []string{"Content-Type"}
		}
	}
	return c
}

// Validate rejects values the service cannot act on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case "llama", "openai":
	default:
		return fmt.Errorf("backend must be llama or openai, got %q", c.Backend)
	}
	switch strings.ToLower(c.Concurrency) {
	case "serial", "parallel":
	default:
		return fmt.Errorf("concurrency must be serial or parallel, got %q", c.Concurrency)
	}
	switch strings.ToLower(c.LogLevel) {
	case "off", "error", "info", "debug":
	default:
		return fmt.Errorf("log_level must be off, error, info or debug, got %q", c.LogLevel)
	}
	if c.Llama.ContextSize < 0 || c.Llama.Threads < 0 || c.Llama.GPULayers < 0 {
		return fmt.Errorf("llama settings must not be negative")
	}
	return nil
}
