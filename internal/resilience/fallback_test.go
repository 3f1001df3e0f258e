package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// newTwoProviderGroup builds a group with "ollama" as primary and "gemini"
// as the only fallback, using short-lived breakers unless cfg says otherwise.
func newTwoProviderGroup(cfg FallbackConfig) *FallbackGroup[string] {
	if cfg.CircuitBreaker.MaxFailures == 0 {
		cfg.CircuitBreaker.MaxFailures = 3
	}
	fg := NewFallbackGroup("ollama", "ollama", cfg)
	fg.AddFallback("gemini", "gemini")
	return fg
}

func TestFallbackGroup_PrefersPrimary(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	var used string
	if err := fg.Execute(func(p string) error { used = p; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "ollama" {
		t.Fatalf("used %q, want the primary", used)
	}
}

func TestFallbackGroup_FailsOverInOrder(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	var used string
	err := fg.Execute(func(p string) error {
		if p == "ollama" {
			return errBackendDown
		}
		used = p
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "gemini" {
		t.Fatalf("used %q, want the fallback", used)
	}
}

func TestFallbackGroup_AllProvidersFail(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	err := fg.Execute(func(string) error { return errBackendDown })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_SkipsProviderWithOpenBreaker(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: time.Hour,
		},
	})

	// Two failing rounds open the primary's breaker.
	primaryCalls := 0
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(p string) error {
			if p == "ollama" {
				primaryCalls++
				return errBackendDown
			}
			return nil
		})
	}

	var used string
	if err := fg.Execute(func(p string) error { used = p; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if used != "gemini" {
		t.Fatalf("used %q, want the fallback while the primary circuit is open", used)
	}
	if primaryCalls != 2 {
		t.Errorf("primary was called %d times, want 2 (no calls through an open breaker)", primaryCalls)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	got := fmt.Sprintf("%v", fg.Names())
	if got != "[ollama gemini]" {
		t.Errorf("Names() = %s, want [ollama gemini]", got)
	}
}

func TestExecuteWithResult_ReturnsPrimaryResult(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	got, err := ExecuteWithResult(fg, func(p string) (string, error) {
		return "translated by " + p, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "translated by ollama" {
		t.Fatalf("result = %q", got)
	}
}

func TestExecuteWithResult_FailsOver(t *testing.T) {
	fg := newTwoProviderGroup(FallbackConfig{})

	got, err := ExecuteWithResult(fg, func(p string) (string, error) {
		if p == "ollama" {
			return "", errBackendDown
		}
		return "translated by " + p, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if got != "translated by gemini" {
		t.Fatalf("result = %q", got)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup("ollama", "ollama", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})

	got, err := ExecuteWithResult(fg, func(string) (string, error) {
		return "", errBackendDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if got != "" {
		t.Errorf("result = %q, want the zero value on failure", got)
	}
}
