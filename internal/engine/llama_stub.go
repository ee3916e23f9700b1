//go:build !llama

package engine

// This file is compiled when the 'llama' build tag is NOT set, keeping default
// builds and CI CGO-free. The real backend lives in llama.go.

import (
	"context"
	"fmt"
)

var llamaBuilt = false

type llamaLoader struct {
	opts LlamaOptions
}

// NewLlamaLoader returns a Loader that refuses to load without llama support.
func NewLlamaLoader(opts LlamaOptions) Loader {
	return &llamaLoader{opts: opts}
}

func (l *llamaLoader) Load(ctx context.Context, modelID string) (Model, error) {
	return nil, fmt.Errorf("%w: llama support not built (missing 'llama' build tag)", ErrUnavailable)
}
