// Command tomeglot is the entry point for the tomeglot translation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/tomeglot/internal/app"
	"github.com/MrWong99/tomeglot/internal/config"
	"github.com/MrWong99/tomeglot/internal/mcpserver"
	"github.com/MrWong99/tomeglot/internal/observe"
	"github.com/MrWong99/tomeglot/internal/resilience"
	"github.com/MrWong99/tomeglot/pkg/provider/embeddings"
	ollamaembed "github.com/MrWong99/tomeglot/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/tomeglot/pkg/provider/embeddings/openai"
	"github.com/MrWong99/tomeglot/pkg/provider/llm"
	"github.com/MrWong99/tomeglot/pkg/provider/llm/anyllm"
	"github.com/MrWong99/tomeglot/pkg/provider/llm/gemini"
	ollamallm "github.com/MrWong99/tomeglot/pkg/provider/llm/ollama"
	"github.com/MrWong99/tomeglot/pkg/provider/llm/openaichat"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of the HTTP API")
	flag.Parse()

	// The logger level lives in a LevelVar so a config reload can change it
	// without tearing the handler down.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	onReload := func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if !diff.Any() {
			return
		}
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.TranslationChanged || diff.SubtitlesChanged {
			slog.Info("translation defaults updated, applies to new jobs")
		}
		if diff.RestartRequired {
			slog.Warn("config change needs a restart to take effect")
		}
	}

	watcher, err := config.NewWatcher(*configPath, onReload)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "tomeglot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "tomeglot: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("tomeglot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "tomeglot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	if *mcpMode {
		slog.Info("serving MCP over stdio")
		err = mcpserver.New(application).Run(ctx)
	} else {
		slog.Info("server ready — press Ctrl+C to shut down")
		err = application.Run(ctx)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// ollama runs against a local server; BaseURL is the address, no API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []ollamallm.Option
		if entry.NumCtx > 0 {
			opts = append(opts, ollamallm.WithNumCtx(entry.NumCtx))
		}
		if entry.TimeoutSeconds > 0 {
			opts = append(opts, ollamallm.WithTimeout(time.Duration(entry.TimeoutSeconds)*time.Second))
		}
		return ollamallm.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openaichat.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaichat.WithBaseURL(entry.BaseURL))
		}
		if entry.TimeoutSeconds > 0 {
			opts = append(opts, openaichat.WithTimeout(time.Duration(entry.TimeoutSeconds)*time.Second))
		}
		return openaichat.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if entry.TimeoutSeconds > 0 {
			opts = append(opts, gemini.WithTimeout(time.Duration(entry.TimeoutSeconds)*time.Second))
		}
		return gemini.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the any-llm pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})
}

// buildProviders instantiates the configured LLM (wrapped in its fallback
// chain) and the optional embeddings backend.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	primary, err := reg.CreateLLM(cfg.Provider.ProviderEntry)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Provider.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Provider.Name, "model", cfg.Provider.Model)

	var provider llm.Provider = primary
	if len(cfg.Provider.Fallbacks) > 0 {
		chain := resilience.NewLLMFallback(primary, cfg.Provider.Name, resilience.FallbackConfig{})
		for _, entry := range cfg.Provider.Fallbacks {
			fb, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create fallback provider %q: %w", entry.Name, err)
			}
			chain.AddFallback(entry.Name, fb)
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
		}
		provider = chain
	}

	ps := &app.Providers{
		LLM: provider,
		LLMForModel: func(model string) (llm.Provider, error) {
			entry := cfg.Provider.ProviderEntry
			entry.Model = model
			return reg.CreateLLM(entry)
		},
	}

	if name := cfg.Provider.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Provider.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name, "model", cfg.Provider.Embeddings.Model)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        tomeglot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Provider", cfg.Provider.Name+" / "+cfg.Provider.Model)
	printRow("Fallbacks", fmt.Sprintf("%d", len(cfg.Provider.Fallbacks)))
	printRow("Source lang", orUnset(cfg.Translation.SourceLanguage))
	printRow("Target lang", orUnset(cfg.Translation.TargetLanguage))
	printRow("Post-process", fmt.Sprintf("%t", cfg.Translation.PostProcessing))
	if cfg.Memory.PostgresDSN != "" {
		printRow("Memory", "postgres")
	} else {
		printRow("Memory", "(disabled)")
	}
	if cfg.Notify.Discord != nil {
		printRow("Discord", "enabled")
	} else {
		printRow("Discord", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

func orUnset(v string) string {
	if v == "" {
		return "(per request)"
	}
	return v
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
