// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to feed controlled model responses to the
// translation engine and document processors without a live backend. Response
// fields are consumed in order; when the scripted responses run out the last
// one repeats. All fields are safe to set before calling any method; mutating
// them during a concurrent call is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// GenerateCall records a single invocation of Generate or Translate.
type GenerateCall struct {
	// Ctx is the context passed to the call.
	Ctx context.Context
	// Prompt is the prompt passed to the call.
	Prompt string
}

// Provider is a mock implementation of llm.Provider.
//
// Responses are scripted: each Generate call consumes the next entry of
// Responses (the last entry repeats once exhausted). Set Errs entries to
// non-nil to inject request failures at specific positions. Translate applies
// the real marker extraction to the scripted response, so tests exercise the
// same parsing the production providers do.
type Provider struct {
	mu sync.Mutex

	// Responses is the sequence of raw responses returned by Generate.
	Responses []string

	// Errs, when non-nil at the current call index, is returned instead of
	// the response at that index.
	Errs []error

	// GenerateFunc, when set, overrides the scripted behaviour entirely.
	GenerateFunc func(ctx context.Context, prompt string) (string, error)

	// Models is returned by ListModels.
	Models []string

	// Calls records every Generate/Translate invocation in order.
	Calls []GenerateCall

	calls int
}

var _ llm.Provider = (*Provider)(nil)

// Generate returns the next scripted response or error.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.Calls = append(p.Calls, GenerateCall{Ctx: ctx, Prompt: prompt})
	fn := p.GenerateFunc
	var (
		resp string
		err  error
	)
	if fn == nil {
		if idx < len(p.Errs) && p.Errs[idx] != nil {
			err = p.Errs[idx]
		} else if len(p.Responses) > 0 {
			if idx >= len(p.Responses) {
				idx = len(p.Responses) - 1
			}
			resp = p.Responses[idx]
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt)
	}
	return resp, err
}

// Translate runs the default retry policy over the scripted responses.
func (p *Provider) Translate(ctx context.Context, prompt string) (string, error) {
	policy := llm.RetryPolicy{MaxAttempts: llm.DefaultMaxAttempts}
	return policy.Translate(ctx, p, prompt)
}

// ListModels returns the configured Models slice.
func (p *Provider) ListModels(context.Context) ([]string, error) {
	return p.Models, nil
}

// Name identifies the mock in logs.
func (p *Provider) Name() string { return "mock" }

// CallCount reports how many Generate calls have been made.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
