package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"genserve/internal/config"
	"genserve/internal/engine"
	"genserve/internal/httpapi"
)

const shutdownTimeout = 5 * time.Second

var (
	// listenAddr is fixed; tests point it at an ephemeral port.
	listenAddr = "127.0.0.1:8888"
	// onListening is called with the bound address once the server accepts connections.
	onListening = func(net.Addr) {}
)

// usageError makes run print the usage line and exit 2.
type usageError struct{ err error }

func (e usageError) Error() string {
	if e.err == nil {
		return "missing model id"
	}
	return e.err.Error()
}

// reportedError has already been logged; run only sets the exit code.
type reportedError struct{ err error }

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

type cliFlags struct {
	configPath string
	backend    string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, argv []string, stderr io.Writer) int {
	prog := "genserve"
	var args []string
	if len(argv) > 0 {
		prog = filepath.Base(argv[0])
		args = argv[1:]
	}
	cmd := newRootCmd(prog, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	var ue usageError
	var re reportedError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ue):
		if ue.err != nil {
			fmt.Fprintf(stderr, "%s: %v\n", prog, ue.err)
		}
		fmt.Fprintf(stderr, "Usage: %s <model-id>\n", prog)
		return 2
	case errors.As(err, &re):
		return 1
	default:
		fmt.Fprintf(stderr, "%s: %v\n", prog, err)
		return 1
	}
}

func newRootCmd(prog string, stderr io.Writer) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:           prog + " <model-id>",
		Short:         "Serve one text-generation model on " + listenAddr,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 1 {
				return usageError{}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), args[0], f, cmd.Flags(), stderr)
		},
	}
	cmd.SetOut(stderr)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	fl := cmd.Flags()
	fl.StringVar(&f.configPath, "config", "", "Path to config file (yaml|yml|json|toml)")
	fl.StringVar(&f.backend, "backend", "", "Inference backend: llama or openai")
	fl.StringVar(&f.logLevel, "log-level", "", "Log level: off, error, info or debug")
	return cmd
}

// loadConfig layers file, environment and flags, then fills defaults.
func loadConfig(f cliFlags, flags *pflag.FlagSet) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		c, err := config.Load(f.configPath)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if flags.Changed("backend") {
		cfg.Backend = f.backend
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, modelID string, f cliFlags, flags *pflag.FlagSet, stderr io.Writer) error {
	cfg, err := loadConfig(f, flags)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, cfg.LogLevel)
	fail := func(msg string, err error) error {
		logger.Error().Err(err).Msg(msg)
		return reportedError{err: fmt.Errorf("%s: %w", msg, err)}
	}

	loader, err := engine.NewLoader(engine.LoaderConfig{
		Backend: cfg.Backend,
		Llama: engine.LlamaOptions{
			ContextSize: cfg.Llama.ContextSize,
			Threads:     cfg.Llama.Threads,
			GPULayers:   cfg.Llama.GPULayers,
		},
		OpenAI: engine.OpenAIOptions{
			BaseURL: cfg.OpenAI.BaseURL,
			APIKey:  cfg.OpenAI.APIKey,
		},
	})
	if err != nil {
		return fail("select backend", err)
	}

	logger.Info().Str("backend", cfg.Backend).Str("model", modelID).Bool("llama_built", engine.LlamaBuilt()).Msg("loading model")
	start := time.Now()
	model, err := loader.Load(ctx, modelID)
	if err != nil {
		return fail("load model", err)
	}
	logger.Info().Dur("took", time.Since(start)).Msg("model loaded")

	requested, err := engine.ParseMode(cfg.Concurrency)
	if err != nil {
		_ = model.Close()
		return fail("concurrency", err)
	}
	mode, downgraded := engine.ResolveMode(requested, model)
	if downgraded {
		logger.Warn().Str("requested", string(requested)).Msg("backend is not safe for concurrent use; generation stays serial")
	}
	guard := engine.NewGuard(model, mode, engine.WithWaitObserver(httpapi.ObserveGenerationWait))

	mux := httpapi.NewMux(guard, httpapi.Options{
		MaxBodyBytes:      cfg.MaxBodyBytes,
		StrictContentType: cfg.StrictContentType,
		CORS: httpapi.CORSOptions{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
		},
		Logger:   &logger,
		LogLevel: httpapi.ParseLevel(cfg.LogLevel),
	})

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		_ = model.Close()
		return fail("listen", err)
	}
	servers := []*http.Server{{Handler: mux, ReadHeaderTimeout: 10 * time.Second}}
	listeners := []net.Listener{ln}

	if cfg.MetricsAddr != "" {
		mln, err := net.Listen("tcp", cfg.MetricsAddr)
		if err != nil {
			_ = ln.Close()
			_ = model.Close()
			return fail("listen metrics", err)
		}
		servers = append(servers, &http.Server{Handler: httpapi.NewMetricsMux(), ReadHeaderTimeout: 10 * time.Second})
		listeners = append(listeners, mln)
		logger.Info().Str("addr", mln.Addr().String()).Msg("metrics listening")
	}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func(srv *http.Server, l net.Listener) {
			errCh <- srv.Serve(l)
		}(srv, listeners[i])
	}
	logger.Info().Str("addr", ln.Addr().String()).Str("concurrency", string(mode)).Msg("genserve listening")
	onListening(ln.Addr())

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown error")
		}
	}
	closeModel(shutdownCtx, guard, &logger)

	if serveErr != nil {
		return fail("serve", serveErr)
	}
	logger.Info().Msg("stopped")
	return nil
}

func closeModel(ctx context.Context, guard *engine.Guard, logger *zerolog.Logger) {
	if err := guard.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("model still busy; leaving it to process exit")
	}
}
