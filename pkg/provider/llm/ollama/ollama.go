// Package ollama provides an llm.Provider backed by a local Ollama server.
//
// Ollama (https://ollama.com) hosts local large language models. This package
// uses the native /api/generate endpoint in non-streaming mode, which fits the
// translation pipeline's prompt-in/text-out shape without the chat framing.
//
// Example usage:
//
//	p, err := ollama.New("", "qwen2.5:14b") // connects to http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := p.Translate(ctx, prompt)
//
// Only standard library packages are used — no additional dependencies are
// required beyond Go's net/http and encoding/json.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// DefaultNumCtx is the context window requested from the model when no
// explicit value is configured.
const DefaultNumCtx = 2048

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using a local Ollama server.
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	numCtx     int
	retry      llm.RetryPolicy
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
	numCtx  int
	retry   llm.RetryPolicy
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout. A zero or negative value means
// no timeout. The default is [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithNumCtx sets the context window size passed in the request options.
// The default is [DefaultNumCtx].
func WithNumCtx(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.numCtx = n
		}
	}
}

// WithRetryPolicy overrides the retry policy used by Translate.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(c *config) {
		c.retry = p
	}
}

// New constructs a new Ollama Provider.
//
// baseURL is the base URL of the Ollama server. If empty, DefaultBaseURL is
// used. A trailing slash is stripped automatically. model is the Ollama model
// name (e.g. "qwen2.5:14b") and must not be empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{
		timeout: llm.DefaultTimeout,
		numCtx:  DefaultNumCtx,
		retry:   llm.NewRetryPolicy(),
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Provider{
		baseURL:    baseURL,
		model:      model,
		numCtx:     cfg.numCtx,
		retry:      cfg.retry,
		httpClient: llm.NewHTTPClient(cfg.timeout),
	}, nil
}

// generateRequest is the JSON request body sent to Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumCtx int `json:"num_ctx"`
}

// generateResponse is the JSON response body returned by /api/generate.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Generate implements llm.Provider with a single non-streaming /api/generate call.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   p.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{NumCtx: p.numCtx},
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama: generate: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	return out.Response, nil
}

// Translate implements llm.Provider via the shared retry loop.
func (p *Provider) Translate(ctx context.Context, prompt string) (string, error) {
	return p.retry.Translate(ctx, p, prompt)
}

// tagsResponse is the JSON response body returned by Ollama's /api/tags endpoint.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the names of the models installed on the Ollama server.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: list models: unexpected status %d", resp.StatusCode)
	}

	var out tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama: decode model list: %w", err)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "ollama" }
