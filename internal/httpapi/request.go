package httpapi

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"genserve/internal/engine"
	"genserve/pkg/types"
)

// requestError is a client-side validation failure (always 400).
type requestError struct{ msg string }

func (e *requestError) Error() string   { return e.msg }
func (e *requestError) StatusCode() int { return http.StatusBadRequest }

func badRequest(format string, a ...any) error {
	return &requestError{msg: fmt.Sprintf(format, a...)}
}

// decodeGenerateRequest parses a /generate body. The body must be a single
// JSON object; prompt is required, max_tokens and temperature are coerced the
// way a loosely-typed client expects (numbers, numeric strings, booleans).
func decodeGenerateRequest(body io.Reader) (types.GenerateRequest, error) {
	req := types.GenerateRequest{
		MaxTokens:   engine.DefaultMaxTokens,
		Temperature: engine.DefaultTemperature,
	}
	dec := json.NewDecoder(body)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return req, badRequest("request body too large")
		}
		return req, badRequest("invalid JSON body")
	}
	var trailing any
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return req, badRequest("invalid JSON body")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return req, badRequest("request body must be a JSON object")
	}

	raw, ok := obj["prompt"]
	if !ok {
		return req, badRequest("prompt is required")
	}
	prompt, ok := raw.(string)
	if !ok {
		return req, badRequest("prompt must be a string")
	}
	req.Prompt = prompt

	if raw, ok := obj["max_tokens"]; ok {
		n, err := coerceInt(raw)
		if err != nil {
			return req, badRequest("max_tokens: %v", err)
		}
		req.MaxTokens = n
	}
	if raw, ok := obj["temperature"]; ok {
		f, err := coerceFloat(raw)
		if err != nil {
			return req, badRequest("temperature: %v", err)
		}
		req.Temperature = f
	}
	return req, nil
}

// coerceInt accepts integral numbers, fractional numbers (truncated toward
// zero), decimal integer strings and booleans.
func coerceInt(v any) (int, error) {
	switch x := v.(type) {
	case json.Number:
		if n, err := strconv.Atoi(x.String()); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("cannot convert %s to integer", x.String())
		}
		t := math.Trunc(f)
		if t >= math.MaxInt || t < math.MinInt {
			return 0, fmt.Errorf("%s is out of range", x.String())
		}
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to integer", x)
		}
		return n, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to integer", jsonKind(v))
	}
}

// coerceFloat accepts numbers, numeric strings and booleans.
func coerceFloat(v any) (float64, error) {
	switch x := v.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %s to number", x.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", x)
		}
		return f, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("cannot convert %s to number", jsonKind(v))
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
