package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeCompletionsServer mimics the subset of an OpenAI-compatible server the
// backend talks to: GET /v1/models/{id} and POST /v1/completions.
type fakeCompletionsServer struct {
	mu   sync.Mutex
	body map[string]any
	text string
}

func (f *fakeCompletionsServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/models/")
		w.Header().Set("Content-Type", "application/json")
		if id != "m1" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"m1","object":"model","created":1700000000,"owned_by":"local"}`))
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.body = body
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "text_completion",
			"created": 1700000000,
			"model":   "m1",
			"choices": []map[string]any{{"index": 0, "text": f.text, "finish_reason": "stop", "logprobs": nil}},
		})
	})
	return mux
}

func TestOpenAIBackend_LoadAndGenerate(t *testing.T) {
	fake := &fakeCompletionsServer{text: "Hello world"}
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()

	loader, err := NewLoader(LoaderConfig{Backend: BackendOpenAI, OpenAI: OpenAIOptions{BaseURL: ts.URL + "/v1/", APIKey: "test"}})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	m, err := loader.Load(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()
	if !m.ConcurrentSafe() {
		t.Fatalf("openai backend should be concurrency-safe")
	}

	text, err := m.Generate(context.Background(), "Hi", Params{MaxTokens: 10, Temperature: 0.0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("text=%q", text)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.body["prompt"] != "Hi" || fake.body["model"] != "m1" {
		t.Fatalf("unexpected request body: %v", fake.body)
	}
	if v, ok := fake.body["max_tokens"].(float64); !ok || v != 10 {
		t.Fatalf("max_tokens=%v", fake.body["max_tokens"])
	}
	if v, ok := fake.body["temperature"].(float64); !ok || v != 0 {
		t.Fatalf("temperature=%v (present=%v)", fake.body["temperature"], ok)
	}
}

func TestOpenAIBackend_UnknownModelFailsLoad(t *testing.T) {
	fake := &fakeCompletionsServer{}
	ts := httptest.NewServer(fake.handler())
	defer ts.Close()

	_, err := NewOpenAILoader(OpenAIOptions{BaseURL: ts.URL + "/v1/", APIKey: "test"}).Load(context.Background(), "nope")
	if err == nil {
		t.Fatalf("expected load error for unknown model")
	}
	if !strings.Contains(err.Error(), "nope") {
		t.Fatalf("error should name the model: %v", err)
	}
}

func TestOpenAIBackend_EmptyName(t *testing.T) {
	if _, err := NewOpenAILoader(OpenAIOptions{}).Load(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty model name")
	}
}
