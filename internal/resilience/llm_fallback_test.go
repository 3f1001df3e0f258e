package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
	llmmock "github.com/MrWong99/tomeglot/pkg/provider/llm/mock"
)

func TestLLMFallback_Generate_PrimarySuccess(t *testing.T) {
	primary := &llmmock.Provider{Responses: []string{"hello from primary"}}
	secondary := &llmmock.Provider{Responses: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from primary" {
		t.Fatalf("response = %q, want 'hello from primary'", resp)
	}
	if primary.CallCount() != 1 {
		t.Fatalf("primary called %d times, want 1", primary.CallCount())
	}
	if secondary.CallCount() != 0 {
		t.Fatalf("secondary called %d times, want 0", secondary.CallCount())
	}
}

func TestLLMFallback_Generate_Failover(t *testing.T) {
	primary := &llmmock.Provider{Errs: []error{errors.New("primary down")}}
	secondary := &llmmock.Provider{Responses: []string{"hello from secondary"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "hello from secondary" {
		t.Fatalf("response = %q, want 'hello from secondary'", resp)
	}
}

func TestLLMFallback_Generate_AllFail(t *testing.T) {
	primary := &llmmock.Provider{Errs: []error{errors.New("primary down")}}
	secondary := &llmmock.Provider{Errs: []error{errors.New("secondary down")}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Generate(context.Background(), "prompt")
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Translate_Failover(t *testing.T) {
	// The primary fails every retry attempt; the secondary answers with a
	// properly marked response that Translate can extract.
	primary := &llmmock.Provider{
		Errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	secondary := &llmmock.Provider{
		Responses: []string{llm.OutputMarkerOpen + "\nBonjour\n" + llm.OutputMarkerClose},
	}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 5},
	})
	fb.AddFallback("secondary", secondary)

	resp, err := fb.Translate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "Bonjour" {
		t.Fatalf("response = %q, want 'Bonjour'", resp)
	}
}

func TestLLMFallback_ListModels(t *testing.T) {
	primary := &llmmock.Provider{Models: []string{"mistral-small", "llama3"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	models, err := fb.ListModels(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 2 || models[0] != "mistral-small" {
		t.Fatalf("models = %v", models)
	}
}

func TestLLMFallback_OpenBreakerSkipsPrimary(t *testing.T) {
	primary := &llmmock.Provider{
		Errs: []error{errors.New("down"), errors.New("down")},
	}
	secondary := &llmmock.Provider{Responses: []string{"ok"}}

	fb := NewLLMFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("secondary", secondary)

	// Two failing calls trip the primary's breaker.
	fb.Generate(context.Background(), "one")
	fb.Generate(context.Background(), "two")
	if primary.CallCount() != 2 {
		t.Fatalf("primary called %d times, want 2", primary.CallCount())
	}

	// With the breaker open the primary is skipped entirely.
	resp, err := fb.Generate(context.Background(), "three")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "ok" {
		t.Fatalf("response = %q, want 'ok'", resp)
	}
	if primary.CallCount() != 2 {
		t.Errorf("primary called while breaker open: %d calls", primary.CallCount())
	}
}

func TestLLMFallback_Name(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{}, "primary", FallbackConfig{})
	if fb.Name() != "mock" {
		t.Errorf("Name() = %q, want %q", fb.Name(), "mock")
	}
}
