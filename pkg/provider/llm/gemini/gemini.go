// Package gemini provides an llm.Provider backed by Google's Gemini API.
//
// The provider calls the REST generateContent endpoint directly rather than
// going through a vendor SDK: the translation pipeline needs exactly one
// request shape (single text part in, single text part out) and the raw
// endpoint keeps the dependency surface small.
package gemini

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

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Generation parameters sent with every request. Translation favours a
// moderately creative temperature; 2048 output tokens comfortably covers a
// 25-line chunk.
const (
	temperature     = 0.7
	maxOutputTokens = 2048
)

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider against the Gemini generateContent API.
// Provider is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	apiKey     string
	retry      llm.RetryPolicy
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	baseURL string
	timeout time.Duration
	retry   llm.RetryPolicy
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the API endpoint. Useful for tests and proxies.
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithTimeout sets a per-request HTTP timeout. The default is [llm.DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetryPolicy overrides the retry policy used by Translate.
func WithRetryPolicy(p llm.RetryPolicy) Option {
	return func(c *config) {
		c.retry = p
	}
}

// New constructs a new Gemini Provider. apiKey and model must not be empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}

	cfg := &config{
		baseURL: DefaultBaseURL,
		timeout: llm.DefaultTimeout,
		retry:   llm.NewRetryPolicy(),
	}
	for _, o := range opts {
		o(cfg)
	}

	return &Provider{
		baseURL:    strings.TrimRight(cfg.baseURL, "/"),
		model:      model,
		apiKey:     apiKey,
		retry:      cfg.retry,
		httpClient: llm.NewHTTPClient(cfg.timeout),
	}, nil
}

// Request/response shapes for the generateContent endpoint. Only the fields
// the pipeline reads are declared.

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate implements llm.Provider with a single generateContent call.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateContentRequest{
		Contents:         []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{Temperature: temperature, MaxOutputTokens: maxOutputTokens},
	})
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, p.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini: generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("gemini: generate: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: generate: response has no candidates")
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

// Translate implements llm.Provider via the shared retry loop.
func (p *Provider) Translate(ctx context.Context, prompt string) (string, error) {
	return p.retry.Translate(ctx, p, prompt)
}

// listModelsResponse is the JSON shape of the /v1beta/models endpoint.
type listModelsResponse struct {
	Models []struct {
		Name                       string   `json:"name"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
}

// ListModels returns the Gemini models usable for translation: models that
// support generateContent, excluding the long-running "thinking" variants
// which are unsuited to high-volume chunk translation.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1beta/models", nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gemini: list models: unexpected status %d", resp.StatusCode)
	}

	var out listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("gemini: decode model list: %w", err)
	}

	var names []string
	for _, m := range out.Models {
		name := strings.TrimPrefix(m.Name, "models/")
		if strings.Contains(name, "thinking") {
			continue
		}
		for _, method := range m.SupportedGenerationMethods {
			if method == "generateContent" {
				names = append(names, name)
				break
			}
		}
	}
	return names, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "gemini" }
