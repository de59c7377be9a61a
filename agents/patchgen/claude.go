/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patchgen

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// claudeProvider implements provider using Anthropic's Messages API.
type claudeProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func newClaudeProvider(model, apiKey string, o *options) *claudeProvider {
	// The generator owns retries.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		opts = append(opts, option.WithBaseURL(o.baseURL))
	}
	if o.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(o.httpClient))
	}
	return &claudeProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   o.maxTokens,
		temperature: o.temperature,
	}
}

func (p *claudeProvider) name() string { return "anthropic" }

func (p *claudeProvider) complete(ctx context.Context, system, user string) (completion, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Temperature: anthropic.Float(p.temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return completion{}, err
	}

	var sb strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	return completion{
		text:             sb.String(),
		promptTokens:     message.Usage.InputTokens,
		completionTokens: message.Usage.OutputTokens,
	}, nil
}

// retryable reports rate limit, overloaded and transient server errors.
func (p *claudeProvider) retryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429, 502, 503, 504, 529:
			return true
		}
	}
	return false
}
