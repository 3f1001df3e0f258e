package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/tomeglot/internal/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":8080"
  log_level: debug
provider:
  name: ollama
  model: mistral-small
  num_ctx: 4096
  fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
translation:
  source_language: English
  target_language: Brazilian Portuguese
  chunk_lines: 25
  post_processing: true
subtitles:
  lines_per_block: 5
  max_chars_per_block: 500
jobs:
  max_concurrent: 2
  output_dir: /tmp/out
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.Name != "ollama" {
		t.Errorf("provider name: got %q, want %q", cfg.Provider.Name, "ollama")
	}
	if len(cfg.Provider.Fallbacks) != 1 || cfg.Provider.Fallbacks[0].Model != "gpt-4o-mini" {
		t.Errorf("fallbacks not parsed: %+v", cfg.Provider.Fallbacks)
	}
	if cfg.Translation.TargetLanguage != "Brazilian Portuguese" {
		t.Errorf("target_language: got %q", cfg.Translation.TargetLanguage)
	}
	if !cfg.Translation.PostProcessing {
		t.Error("post_processing should be true")
	}
	if cfg.Jobs.MaxConcurrent != 2 {
		t.Errorf("max_concurrent: got %d, want 2", cfg.Jobs.MaxConcurrent)
	}
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adress: ":8080"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for misspelled field, got nil")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/tomeglot/cert.pem
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key_file, got nil")
	}
	if !strings.Contains(err.Error(), "key_file") {
		t.Errorf("error should mention key_file, got: %v", err)
	}
}

func TestValidate_FallbackNameRequired(t *testing.T) {
	t.Parallel()
	yaml := `
provider:
  name: ollama
  fallbacks:
    - model: gpt-4o-mini
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback without name, got nil")
	}
	if !strings.Contains(err.Error(), "fallbacks[0].name") {
		t.Errorf("error should mention fallbacks[0].name, got: %v", err)
	}
}

func TestValidate_DiscordRequiresTokenAndChannel(t *testing.T) {
	t.Parallel()
	yaml := `
notify:
  discord:
    token: ""
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for discord sink without token/channel, got nil")
	}
	if !strings.Contains(err.Error(), "token") {
		t.Errorf("error should mention token, got: %v", err)
	}
	if !strings.Contains(err.Error(), "channel_id") {
		t.Errorf("error should mention channel_id, got: %v", err)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
provider:
  num_ctx: -1
translation:
  chunk_lines: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected joined validation errors, got nil")
	}
	for _, want := range []string{"log_level", "num_ctx", "chunk_lines"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %s, got: %v", want, err)
		}
	}
}

func TestValidate_EmptyConfigIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config, got nil")
	}
}
