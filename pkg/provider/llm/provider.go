// Package llm defines the Provider interface for the text-generation backends
// used to translate documents.
//
// A provider wraps a remote or local model API (a local Ollama instance, an
// OpenAI-compatible chat endpoint, or Google's Gemini API) and exposes a
// uniform prompt-in/text-out interface. The translation pipeline never talks
// to a vendor SDK directly; it builds a prompt, calls Translate, and receives
// the extracted translation.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly from every method.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Markers delimiting the payload inside prompts and the translation inside
// model responses. These exact strings are referenced by the prompt builder
// and must never change independently of it.
const (
	InputMarkerOpen  = "[TO TRANSLATE]"
	InputMarkerClose = "[/TO TRANSLATE]"

	OutputMarkerOpen  = "<TRANSLATED>"
	OutputMarkerClose = "</TRANSLATED>"
)

// Defaults applied by provider constructors when the corresponding option is
// not supplied.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 2
	DefaultRetryDelay  = 2 * time.Second
)

// ErrMarkersMissing reports that a model response did not contain the
// <TRANSLATED>…</TRANSLATED> output markers. Translate wraps it together with
// the raw response so callers can decide whether the unwrapped text is still
// usable.
var ErrMarkersMissing = errors.New("llm: response is missing translation markers")

// Provider is the abstraction over any text-generation backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
type Provider interface {
	// Generate sends a single prompt to the model and returns the raw
	// completion text. Retrying is the caller's concern; Generate performs
	// exactly one request.
	Generate(ctx context.Context, prompt string) (string, error)

	// Translate sends the prompt, retries transient failures, and extracts
	// the text between the output markers. When the response carries no
	// markers, the trimmed raw response is returned together with an error
	// wrapping [ErrMarkersMissing].
	Translate(ctx context.Context, prompt string) (string, error)

	// ListModels returns the model names available on the backend, or an
	// empty slice when the backend has no listing endpoint.
	ListModels(ctx context.Context) ([]string, error)

	// Name identifies the provider kind ("ollama", "gemini", …) for logging
	// and metrics.
	Name() string
}

// markerRe extracts the first marker-delimited span. (?s) lets the span cover
// multiple lines; the lazy quantifier stops at the first closing marker.
var markerRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(OutputMarkerOpen) + `(.*?)` + regexp.QuoteMeta(OutputMarkerClose))

// ExtractTranslation pulls the translated text out of a raw model response.
//
// On success the text between the first pair of output markers is returned,
// trimmed. When no marker pair is present, the trimmed raw response is
// returned together with an error wrapping [ErrMarkersMissing] — the raw text
// is often still a usable translation, just unwrapped, and the translation
// engine decides what to do with it.
func ExtractTranslation(raw string) (string, error) {
	if m := markerRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return strings.TrimSpace(raw), fmt.Errorf("llm: extract translation: %w", ErrMarkersMissing)
}

// RetryPolicy controls the retry loop shared by all Translate implementations.
// The zero value retries nothing; use [NewRetryPolicy] for the defaults.
type RetryPolicy struct {
	// MaxAttempts is the total number of Generate calls allowed, including
	// the first one. Values below 1 are treated as 1.
	MaxAttempts int

	// Delay is the fixed pause between attempts. The pause is context-aware:
	// cancellation during the pause aborts the loop immediately.
	Delay time.Duration
}

// NewRetryPolicy returns the default policy: two attempts, two seconds apart.
func NewRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Delay: DefaultRetryDelay}
}

// Translate runs the shared translate loop on behalf of a provider: call
// Generate up to p.MaxAttempts times, pausing p.Delay between attempts, and
// extract the marker-delimited translation from the first successful response.
//
// Request errors are retried; a response without markers is not (the model
// answered — asking again with the identical prompt rarely helps, and the raw
// text may still be usable). The last request error is returned when every
// attempt fails.
func (p RetryPolicy) Translate(ctx context.Context, provider Provider, prompt string) (string, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Delay > 0 {
			t := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return "", ctx.Err()
			case <-t.C:
			}
		}

		raw, err := provider.Generate(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		return ExtractTranslation(raw)
	}
	return "", fmt.Errorf("llm: %s: all %d attempts failed: %w", provider.Name(), attempts, lastErr)
}
