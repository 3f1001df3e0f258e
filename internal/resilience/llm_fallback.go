package resilience

import (
	"context"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends the prompt to the first healthy provider and returns its raw
// completion. If the primary fails, subsequent fallbacks are tried.
func (f *LLMFallback) Generate(ctx context.Context, prompt string) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Generate(ctx, prompt)
	})
}

// Translate runs the full translate-with-retries flow on the first healthy
// provider. A provider whose retries are exhausted counts as failed and the
// next fallback is tried with the same prompt.
func (f *LLMFallback) Translate(ctx context.Context, prompt string) (string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (string, error) {
		return p.Translate(ctx, prompt)
	})
}

// ListModels returns the models of the first healthy provider.
func (f *LLMFallback) ListModels(ctx context.Context) ([]string, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) ([]string, error) {
		return p.ListModels(ctx)
	})
}

// Name identifies the primary backend. The fallback chain is an implementation
// detail; logs attribute requests to the configured primary.
func (f *LLMFallback) Name() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Name()
	}
	return "fallback"
}
