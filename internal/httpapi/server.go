package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"genserve/internal/engine"
	"genserve/pkg/types"
)

// Generator is the model handle as seen by the HTTP layer. *engine.Guard
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, p engine.Params) (string, error)
}

type server struct {
	gen  Generator
	opts Options
}

// NewMux builds the router. POST /generate is the only route.
func NewMux(gen Generator, opts Options) http.Handler {
	s := &server{gen: gen, opts: opts}

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if opts.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORS.AllowedOrigins,
			AllowedMethods: opts.CORS.AllowedMethods,
			AllowedHeaders: opts.CORS.AllowedHeaders,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Post("/generate", s.generate)
	return r
}

// generate godoc
// @Summary      Generate text
// @Description  Runs the loaded model on a prompt and returns the full completion.
// @Accept       json
// @Produce      json
// @Param        request  body      types.GenerateRequest  true  "Generation request"
// @Success      200      {object}  types.GenerateResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      500      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /generate [post]
func (s *server) generate(w http.ResponseWriter, r *http.Request) {
	lvl := requestLogLevel(r, s.opts.LogLevel)
	if s.opts.StrictContentType {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.maxBodyBytes())
	req, err := decodeGenerateRequest(r.Body)
	if err != nil {
		writeJSONError(w, statusFor(err), err.Error())
		if lvl >= LevelInfo {
			s.event(r, zerolog.InfoLevel).Int("status", statusFor(err)).Err(err).Msg("generate rejected")
		}
		return
	}

	if lvl >= LevelInfo {
		z := s.event(r, zerolog.InfoLevel).Int("max_tokens", req.MaxTokens).Float64("temperature", req.Temperature)
		if lvl >= LevelDebug {
			z = z.Str("prompt", req.Prompt)
		}
		z.Msg("generate start")
	}
	start := time.Now()
	text, err := s.gen.Generate(r.Context(), req.Prompt, engine.Params{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	dur := time.Since(start)
	if err != nil {
		// Client went away while waiting for the model; nobody to answer.
		if r.Context().Err() != nil && !engine.IsGenerationError(err) {
			observeGeneration("abandoned", dur)
			return
		}
		observeGeneration("error", dur)
		status := statusFor(err)
		writeJSONError(w, status, err.Error())
		if lvl >= LevelError {
			s.event(r, zerolog.ErrorLevel).Int("status", status).Dur("dur", dur).Err(err).Msg("generate end")
		}
		return
	}
	observeGeneration("ok", dur)
	writeJSON(w, http.StatusOK, types.GenerateResponse{Text: text})
	if lvl >= LevelInfo {
		z := s.event(r, zerolog.InfoLevel).Int("status", http.StatusOK).Dur("dur", dur).Int("chars", len(text))
		if lvl >= LevelDebug {
			z = z.Str("text", text)
		}
		z.Msg("generate end")
	}
}

// event starts a log event tagged with the request path and id.
func (s *server) event(r *http.Request, level zerolog.Level) *zerolog.Event {
	z := s.opts.logger().WithLevel(level).Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	return z
}
