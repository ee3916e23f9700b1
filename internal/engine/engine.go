package engine

import "context"

// Default sampling parameters applied when a request omits them.
const (
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.6
)

// Params are the sampling parameters of a single generation call.
type Params struct {
	MaxTokens   int
	Temperature float64
}

// Model is a loaded model and its tokenizer. It is created once by a Loader
// and is never mutated afterwards.
type Model interface {
	// Generate runs inference to completion and returns the full text.
	Generate(ctx context.Context, prompt string, p Params) (string, error)
	// ConcurrentSafe reports whether Generate may be called from several
	// goroutines at once.
	ConcurrentSafe() bool
	// Close releases resources held by the model.
	Close() error
}

// Loader turns a model identifier into a loaded Model.
type Loader interface {
	Load(ctx context.Context, modelID string) (Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, modelID string) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, modelID string) (Model, error) {
	return f(ctx, modelID)
}
