// Package openaichat provides an llm.Provider for hosted chat-completion
// backends speaking the OpenAI API: the OpenAI platform itself and the many
// compatible servers (LM Studio, vLLM, llama.cpp's server, OpenRouter, …).
//
// The prompt is sent as a single user message; the first choice's message
// content is the raw response.
package openaichat

import (
	"context"
	"fmt"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/tomeglot/pkg/provider/llm"
)

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using an OpenAI-compatible chat API.
// Provider is safe for concurrent use.
type Provider struct {
	client oai.Client
	model  string
	retry  llm.RetryPolicy
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
	retry   llm.RetryPolicy
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL points the client at an OpenAI-compatible server instead of the
// OpenAI platform.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
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

// New constructs a new chat-completion Provider. model must not be empty;
// apiKey may be empty for local compatible servers that skip authentication.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("openaichat: model must not be empty")
	}

	cfg := &config{
		timeout: llm.DefaultTimeout,
		retry:   llm.NewRetryPolicy(),
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{}
	if apiKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(apiKey))
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	reqOpts = append(reqOpts, option.WithHTTPClient(llm.NewHTTPClient(cfg.timeout)))

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		retry:  cfg.retry,
	}, nil
}

// Generate implements llm.Provider with a single non-streaming chat completion.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: oai.ChatModel(p.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openaichat: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openaichat: generate: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Translate implements llm.Provider via the shared retry loop.
func (p *Provider) Translate(ctx context.Context, prompt string) (string, error) {
	return p.retry.Translate(ctx, p, prompt)
}

// ListModels returns the model identifiers the backend advertises.
func (p *Provider) ListModels(ctx context.Context) ([]string, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("openaichat: list models: %w", err)
	}
	var names []string
	for _, m := range page.Data {
		names = append(names, m.ID)
	}
	return names, nil
}

// Name implements llm.Provider.
func (p *Provider) Name() string { return "openaichat" }
