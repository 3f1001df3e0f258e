// Package app wires all tomeglot subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order — interrupting running jobs first so their
// partial output reaches disk.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/tomeglot/internal/api"
	"github.com/MrWong99/tomeglot/internal/config"
	"github.com/MrWong99/tomeglot/internal/health"
	"github.com/MrWong99/tomeglot/internal/jobs"
	"github.com/MrWong99/tomeglot/internal/notify"
	"github.com/MrWong99/tomeglot/internal/observe"
	"github.com/MrWong99/tomeglot/internal/tmemory"
	"github.com/MrWong99/tomeglot/pkg/provider/embeddings"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// defaultEmbeddingDims matches OpenAI text-embedding-3-small, the most common
// embeddings setup. Ollama users configure their model's dimension explicitly.
const defaultEmbeddingDims = 1536

// Providers holds the model backends the application translates with.
// Populated by main.go via the config registry.
type Providers struct {
	// LLM is the translation backend, already wrapped in the configured
	// fallback chain. Required.
	LLM llm.Provider

	// LLMForModel constructs a provider for a per-request model override.
	// Nil rejects model overrides.
	LLMForModel func(model string) (llm.Provider, error)

	// Embeddings backs the translation memory's fuzzy search. Optional.
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	logger    *slog.Logger

	jobs     *jobs.Manager
	hub      *api.Hub
	memory   *tmemory.Store // nil when no DSN configured
	notifier *notify.Discord
	metrics  *observe.Metrics

	outputDir string
	server    *http.Server

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		hub:       api.NewHub(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	a.outputDir = cfg.Jobs.OutputDir
	if a.outputDir == "" {
		a.outputDir = "."
	}
	if err := os.MkdirAll(a.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create output dir: %w", err)
	}

	sinks := jobs.MultiSink{a.hub}
	if d := cfg.Notify.Discord; d != nil {
		notifier, err := notify.NewDiscord(d.Token, d.ChannelID, nil)
		if err != nil {
			return nil, fmt.Errorf("app: discord notifier: %w", err)
		}
		a.notifier = notifier
		a.closers = append(a.closers, notifier.Close)
		sinks = append(sinks, notifier)
		a.logger.Info("discord notifications enabled", "channel_id", d.ChannelID)
	}

	a.jobs = jobs.New(int64(cfg.Jobs.MaxConcurrent),
		jobs.WithEventSink(sinks),
		jobs.WithLogger(a.logger),
	)
	if a.notifier != nil {
		a.notifier.SetLookup(a.jobs)
	}

	if err := a.initMemory(ctx); err != nil {
		return nil, err
	}

	return a, nil
}

// initMemory connects the optional Postgres translation memory.
func (a *App) initMemory(ctx context.Context) error {
	dsn := a.cfg.Memory.PostgresDSN
	if dsn == "" {
		return nil
	}

	dims := a.cfg.Memory.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDims
	}

	store, err := tmemory.NewStore(ctx, dsn,
		a.cfg.Translation.SourceLanguage, a.cfg.Translation.TargetLanguage, dims,
		tmemory.WithEmbeddings(a.providers.Embeddings),
		tmemory.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("app: init translation memory: %w", err)
	}
	a.memory = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	a.logger.Info("translation memory connected", "dimensions", dims,
		"fuzzy_search", a.providers.Embeddings != nil)
	return nil
}

// Jobs exposes the job manager, primarily for tests and the MCP server.
func (a *App) Jobs() *jobs.Manager { return a.jobs }

// OutputDir reports where finished documents are written.
func (a *App) OutputDir() string { return a.outputDir }

// Handler builds the full HTTP handler: API routes, health endpoints and the
// Prometheus scrape endpoint, wrapped in the request metrics middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	apiServer := &api.Server{
		Jobs:      a.jobs,
		Submit:    a.Submit,
		Provider:  a.providers.LLM,
		OutputDir: a.outputDir,
		Hub:       a.hub,
		Logger:    a.logger,
	}
	apiServer.Register(mux)

	checkers := []health.Checker{health.ProviderChecker(a.providers.LLM)}
	if a.memory != nil {
		checkers = append(checkers, health.Checker{
			Name:  "memory",
			Check: a.memory.Ping,
		})
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(a.metrics)(mux)
}

// Run serves HTTP(S) until ctx is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.server = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			a.logger.Info("serving HTTPS", "addr", addr)
			err = a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			a.logger.Info("serving HTTP", "addr", addr)
			err = a.server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops the HTTP server, interrupts running jobs so their partial
// output is saved, waits for them, and closes all subsystems in reverse
// order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}

		a.jobs.Shutdown()
		a.jobs.Wait()

		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
