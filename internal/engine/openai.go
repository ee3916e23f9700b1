package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultOpenAIBaseURL = "http://127.0.0.1:8080/v1/"

type openaiLoader struct {
	opts OpenAIOptions
}

// NewOpenAILoader returns a Loader for a model served by an OpenAI-compatible
// server such as llama-server or vLLM. The model id is the remote model name.
func NewOpenAILoader(opts OpenAIOptions) Loader {
	return &openaiLoader{opts: opts}
}

// openaiModel is a handle on a remote model. The HTTP client is safe for
// concurrent use.
type openaiModel struct {
	client openai.Client
	name   string
}

// Load checks that the server knows modelID before returning a handle, so a
// typo fails at startup rather than on the first request.
func (l *openaiLoader) Load(ctx context.Context, modelID string) (Model, error) {
	name := strings.TrimSpace(modelID)
	if name == "" {
		return nil, errors.New("model name is empty")
	}
	base := l.opts.BaseURL
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	opts := []option.RequestOption{
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
	}
	if l.opts.APIKey != "" {
		opts = append(opts, option.WithAPIKey(l.opts.APIKey))
	}
	client := openai.NewClient(opts...)
	if _, err := client.Models.Get(ctx, name); err != nil {
		return nil, fmt.Errorf("load %s from %s: %w", name, base, err)
	}
	return &openaiModel{client: client, name: name}, nil
}

func (m *openaiModel) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	resp, err := m.client.Completions.New(ctx, openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(m.name),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:   openai.Int(int64(p.MaxTokens)),
		Temperature: openai.Float(p.Temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Text, nil
}

func (m *openaiModel) ConcurrentSafe() bool { return true }

func (m *openaiModel) Close() error { return nil }
