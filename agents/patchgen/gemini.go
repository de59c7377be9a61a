/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patchgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/sonarfix/retry"
	"google.golang.org/genai"
)

// geminiProvider implements provider using the Gemini API.
type geminiProvider struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

func newGeminiProvider(ctx context.Context, model, apiKey string, o *options) (*geminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions.BaseURL = o.baseURL
	}
	if o.httpClient != nil {
		cfg.HTTPClient = o.httpClient
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &geminiProvider{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			Temperature:     genai.Ptr(float32(o.temperature)),
			MaxOutputTokens: int32(o.maxTokens),
		},
	}, nil
}

func (p *geminiProvider) name() string { return "google" }

func (p *geminiProvider) complete(ctx context.Context, system, user string) (completion, error) {
	config := *p.config
	config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(user), &config)
	if err != nil {
		return completion{}, err
	}
	out := completion{text: resp.Text()}
	if resp.UsageMetadata != nil {
		out.promptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		out.completionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// retryable reports rate limit, quota exhaustion and transient server errors.
func (p *geminiProvider) retryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retry.RetryableStatus(apiErr.Code)
	}
	errStr := err.Error()
	return strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "Resource exhausted") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "Overloaded")
}
