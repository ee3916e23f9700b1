//go:build llama

package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

const defaultContextSize = 2048

type llamaLoader struct {
	opts LlamaOptions
}

// NewLlamaLoader returns a Loader that opens a local GGUF file with go-llama.cpp.
func NewLlamaLoader(opts LlamaOptions) Loader {
	return &llamaLoader{opts: opts}
}

// llamaModel owns the loaded model. go-llama.cpp keeps per-model decoding
// state, so Generate must not run concurrently.
type llamaModel struct {
	model   *llama.LLama
	threads int
}

func (l *llamaLoader) Load(ctx context.Context, modelID string) (Model, error) {
	path, err := ExpandHome(modelID)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(zn(l.opts.ContextSize, defaultContextSize)),
	}
	if l.opts.GPULayers > 0 {
		mo = append(mo, llama.SetGPULayers(l.opts.GPULayers))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return &llamaModel{model: m, threads: zn(l.opts.Threads, runtime.NumCPU())}, nil
}

func (m *llamaModel) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if m.model == nil {
		return "", errors.New("llama model not initialized")
	}
	text, err := m.model.Predict(prompt, predictOptions(p, m.threads)...)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (m *llamaModel) ConcurrentSafe() bool { return false }

func (m *llamaModel) Close() error {
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// predictOptions maps request parameters onto go-llama.cpp options. The
// temperature is passed as given; zero selects greedy decoding.
func predictOptions(p Params, threads int) []llama.PredictOption {
	return []llama.PredictOption{
		llama.SetTokens(max(1, p.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTemperature(float32(p.Temperature)),
	}
}
