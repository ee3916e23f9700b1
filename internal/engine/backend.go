package engine

import (
	"fmt"
	"strings"
)

// Supported backends.
const (
	BackendLlama  = "llama"
	BackendOpenAI = "openai"
)

// LlamaOptions configure the in-process llama.cpp backend.
type LlamaOptions struct {
	ContextSize int
	Threads     int
	GPULayers   int
}

// OpenAIOptions configure the OpenAI-compatible completions backend.
type OpenAIOptions struct {
	BaseURL string
	APIKey  string
}

// LoaderConfig selects and configures a backend.
type LoaderConfig struct {
	Backend string
	Llama   LlamaOptions
	OpenAI  OpenAIOptions
}

// NewLoader returns the Loader for cfg.Backend. An empty backend means llama.
func NewLoader(cfg LoaderConfig) (Loader, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendLlama:
		return NewLlamaLoader(cfg.Llama), nil
	case BackendOpenAI:
		return NewOpenAILoader(cfg.OpenAI), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// LlamaBuilt reports whether this binary was compiled with the 'llama' tag.
func LlamaBuilt() bool { return llamaBuilt }
