/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patchgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/sonarfix/agents/metrics"
	"chainguard.dev/sonarfix/retry"
	"chainguard.dev/sonarfix/sonarqube"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrEmptyPatch is returned when the model answers with no content.
	ErrEmptyPatch = errors.New("model returned empty content")

	// ErrContentTooLarge is returned, before any request is made, for files
	// above the configured size limit.
	ErrContentTooLarge = errors.New("file content too large")
)

const (
	// DefaultMaxTokens is the output ceiling for a single patch.
	DefaultMaxTokens = 8192

	// DefaultTemperature keeps patches close to deterministic.
	DefaultTemperature = 0.2

	// DefaultMaxContentBytes bounds the file embedded in the prompt.
	DefaultMaxContentBytes = 200 << 10
)

// Generator produces the full corrected content of one file.
type Generator interface {
	// Generate returns the replacement for content, the current content of
	// the repository-relative path, that resolves the given issues.
	Generate(ctx context.Context, path, content string, issues []sonarqube.Issue) (string, error)
}

// completion is a provider's answer to one prompt.
type completion struct {
	text             string
	promptTokens     int64
	completionTokens int64
}

// provider is a single model backend.
type provider interface {
	name() string
	complete(ctx context.Context, system, user string) (completion, error)
	retryable(err error) bool
}

type options struct {
	baseURL         string
	httpClient      *http.Client
	maxTokens       int64
	temperature     float64
	maxContentBytes int
	retry           retry.Config
	enricher        metrics.AttributeEnricher
	metrics         *metrics.GenAI
}

// Option configures a Generator.
type Option func(*options) error

// WithBaseURL points the provider SDK at a different API endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) error {
		o.baseURL = u
		return nil
	}
}

// WithHTTPClient overrides the HTTP client used by the provider SDK.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return errors.New("http client cannot be nil")
		}
		o.httpClient = hc
		return nil
	}
}

// WithMaxTokens sets the output ceiling.
func WithMaxTokens(tokens int64) Option {
	return func(o *options) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		o.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *options) error {
		if temp < 0.0 || temp > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temp)
		}
		o.temperature = temp
		return nil
	}
}

// WithMaxContentBytes sets the largest file that may be sent to the model.
func WithMaxContentBytes(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max content bytes must be positive, got %d", n)
		}
		o.maxContentBytes = n
		return nil
	}
}

// WithRetryConfig sets the backoff used for rate limits and overloads.
func WithRetryConfig(cfg retry.Config) Option {
	return func(o *options) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid retry config: %w", err)
		}
		o.retry = cfg
		return nil
	}
}

// WithAttributeEnricher adds contextual attributes to the token metrics.
func WithAttributeEnricher(enricher metrics.AttributeEnricher) Option {
	return func(o *options) error {
		o.enricher = enricher
		return nil
	}
}

// WithMetrics records usage on m instead of the process-wide meter.
func WithMetrics(m *metrics.GenAI) Option {
	return func(o *options) error {
		if m == nil {
			return errors.New("metrics cannot be nil")
		}
		o.metrics = m
		return nil
	}
}

// New creates a Generator for the given model, choosing the provider from
// the model name.
func New(ctx context.Context, model, apiKey string, opts ...Option) (Generator, error) {
	if apiKey == "" {
		return nil, errors.New("api key cannot be empty")
	}
	o := &options{
		maxTokens:       DefaultMaxTokens,
		temperature:     DefaultTemperature,
		maxContentBytes: DefaultMaxContentBytes,
		retry:           retry.DefaultConfig(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	var (
		p   provider
		err error
	)
	modelLower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(modelLower, "claude-"):
		p = newClaudeProvider(model, apiKey, o)
	case strings.HasPrefix(modelLower, "gpt-"),
		strings.HasPrefix(modelLower, "o1"),
		strings.HasPrefix(modelLower, "o3"),
		strings.HasPrefix(modelLower, "o4"):
		p = newOpenAIProvider(model, apiKey, o)
	case strings.HasPrefix(modelLower, "gemini-"):
		p, err = newGeminiProvider(ctx, model, apiKey, o)
	default:
		return nil, fmt.Errorf("unsupported model: %s (expected claude-*, gpt-*, o1*, o3*, o4* or gemini-*)", model)
	}
	if err != nil {
		return nil, err
	}
	return newGenerator(p, model, o), nil
}

func newGenerator(p provider, model string, o *options) *generator {
	m := o.metrics
	if m == nil {
		m = metrics.NewGenAI(metrics.MeterName)
	}
	if o.enricher != nil {
		m.SetAttributeEnricher(o.enricher)
	}
	return &generator{
		provider:        p,
		model:           model,
		maxContentBytes: o.maxContentBytes,
		retry:           o.retry,
		metrics:         m,
	}
}

// generator provides the private implementation shared by all providers.
type generator struct {
	provider        provider
	model           string
	maxContentBytes int
	retry           retry.Config
	metrics         *metrics.GenAI
}

var _ Generator = (*generator)(nil)

// Generate implements Generator.
func (g *generator) Generate(ctx context.Context, path, content string, issues []sonarqube.Issue) (string, error) {
	if len(issues) == 0 {
		return "", fmt.Errorf("no issues to fix in %s", path)
	}
	if len(content) > g.maxContentBytes {
		return "", fmt.Errorf("%s is %d bytes, limit is %d: %w", path, len(content), g.maxContentBytes, ErrContentTooLarge)
	}

	prompt, err := renderUserPrompt(path, content, issues)
	if err != nil {
		return "", fmt.Errorf("building prompt: %w", err)
	}

	log := clog.FromContext(ctx).With("path", path).With("model", g.model)
	log.With("issues", len(issues)).
		With("prompt_length", len(prompt)).
		Info("Requesting patch")

	providerAttr := attribute.String("provider", g.provider.name())
	out, err := retry.Do(ctx, g.retry, "generate_patch", g.provider.retryable, func() (completion, error) {
		return g.provider.complete(ctx, systemPrompt, prompt)
	})
	g.metrics.RecordRequest(ctx, g.model, err, providerAttr)
	if err != nil {
		return "", fmt.Errorf("generating patch for %s: %w", path, err)
	}
	if out.promptTokens > 0 || out.completionTokens > 0 {
		g.metrics.RecordTokens(ctx, g.model, out.promptTokens, out.completionTokens, providerAttr)
	}

	patched := StripCodeFences(out.text)
	if strings.TrimSpace(patched) == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyPatch)
	}
	if strings.HasSuffix(content, "\n") && !strings.HasSuffix(patched, "\n") {
		patched += "\n"
	}

	log.With("response_length", len(patched)).Info("Received patch")
	return patched, nil
}

// StripCodeFences removes a markdown code fence wrapping the whole of s, if
// present, along with any info string on the opening fence.
func StripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 {
		return ""
	}
	body := trimmed[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 && strings.TrimSpace(body[end+3:]) == "" {
		body = body[:end]
	}
	return body
}
