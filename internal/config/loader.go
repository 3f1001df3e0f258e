package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"ollama", "openai", "gemini", "anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"ollama", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Providers
	validateProviderName("llm", "provider.name", cfg.Provider.Name)
	for i, fb := range cfg.Provider.Fallbacks {
		validateProviderName("llm", fmt.Sprintf("provider.fallbacks[%d].name", i), fb.Name)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("provider.fallbacks[%d].name is required", i))
		}
	}
	validateProviderName("embeddings", "provider.embeddings.name", cfg.Provider.Embeddings.Name)
	if cfg.Provider.NumCtx < 0 {
		errs = append(errs, fmt.Errorf("provider.num_ctx %d must not be negative", cfg.Provider.NumCtx))
	}
	if cfg.Provider.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("provider.timeout_seconds %d must not be negative", cfg.Provider.TimeoutSeconds))
	}

	// Translation
	if cfg.Translation.ChunkLines < 0 {
		errs = append(errs, fmt.Errorf("translation.chunk_lines %d must not be negative", cfg.Translation.ChunkLines))
	}
	warnIfNotLanguage("translation.source_language", cfg.Translation.SourceLanguage)
	warnIfNotLanguage("translation.target_language", cfg.Translation.TargetLanguage)

	// Subtitles
	if cfg.Subtitles.LinesPerBlock < 0 {
		errs = append(errs, fmt.Errorf("subtitles.lines_per_block %d must not be negative", cfg.Subtitles.LinesPerBlock))
	}
	if cfg.Subtitles.MaxCharsPerBlock < 0 {
		errs = append(errs, fmt.Errorf("subtitles.max_chars_per_block %d must not be negative", cfg.Subtitles.MaxCharsPerBlock))
	}

	// Jobs
	if cfg.Jobs.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("jobs.max_concurrent %d must not be negative", cfg.Jobs.MaxConcurrent))
	}

	// Memory ↔ embeddings
	if cfg.Memory.PostgresDSN != "" && cfg.Provider.Embeddings.Name == "" {
		slog.Warn("memory.postgres_dsn is set but provider.embeddings is not configured; fuzzy lookup will be unavailable")
	}
	if cfg.Provider.Embeddings.Name != "" && cfg.Memory.PostgresDSN != "" && cfg.Memory.EmbeddingDimensions <= 0 {
		slog.Warn("provider.embeddings is configured but memory.embedding_dimensions is not set; defaulting to 768")
	}

	// Notify
	if d := cfg.Notify.Discord; d != nil {
		if d.Token == "" {
			errs = append(errs, errors.New("notify.discord.token is required"))
		}
		if d.ChannelID == "" {
			errs = append(errs, errors.New("notify.discord.channel_id is required"))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, field, name string) {
	if name == "" {
		return
	}
	if !slices.Contains(ValidProviderNames[kind], name) {
		slog.Warn("unrecognised provider name; registration must happen before use",
			"field", field, "name", name, "known", ValidProviderNames[kind])
	}
}

// warnIfNotLanguage warns when a language value looks like a BCP-47 tag but
// does not parse as one. Free-form names ("Brazilian Portuguese") are fine;
// they are fed to the model verbatim.
func warnIfNotLanguage(field, value string) {
	if value == "" || strings.ContainsRune(value, ' ') || len(value) > 5 {
		return
	}
	if _, err := language.Parse(value); err != nil {
		slog.Warn("language value does not parse as a BCP-47 tag; it will be passed to the model verbatim",
			"field", field, "value", value)
	}
}
