// Package anyllm provides an llm.Provider backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface
// covering Anthropic, DeepSeek, Mistral, Groq, and other hosted chat APIs
// that the dedicated ollama/openaichat/gemini packages do not.
//
// Usage:
//
//	p, err := anyllm.New("anthropic", "claude-sonnet-4-5", anyllmlib.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider by wrapping github.com/mozilla-ai/any-llm-go.
type Provider struct {
	backend anyllmlib.Provider
	name    string
	model   string
	retry   llm.RetryPolicy
}

// New creates a new Provider backed by the given hosted vendor.
//
// providerName is one of: "anthropic", "deepseek", "mistral", "groq",
// "llamacpp", "llamafile". model is the vendor's model identifier. opts are
// any-llm-go configuration options (e.g. anyllmlib.WithAPIKey,
// anyllmlib.WithBaseURL); without an API key option the provider falls back
// to the vendor's usual environment variable (ANTHROPIC_API_KEY, …).
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	backend, err := createBackend(providerName, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Provider{
		backend: backend,
		name:    strings.ToLower(providerName),
		model:   model,
		retry:   llm.NewRetryPolicy(),
	}, nil
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic":
		return anthropic.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: anthropic, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Generate implements llm.Provider with a single-message completion.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.backend.Completion(ctx, anyllmlib.CompletionParams{
		Model: p.model,
		Messages: []anyllmlib.Message{
			{Role: anyllmlib.RoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("anyllm: %s: completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: %s: empty choices in response", p.name)
	}
	return resp.Choices[0].Message.ContentString(), nil
}

// Translate implements llm.Provider via the shared retry loop.
func (p *Provider) Translate(ctx context.Context, prompt string) (string, error) {
	return p.retry.Translate(ctx, p, prompt)
}

// ListModels implements llm.Provider. any-llm-go has no uniform model listing
// endpoint across vendors, so the list is always empty.
func (p *Provider) ListModels(context.Context) ([]string, error) {
	return nil, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.name }
