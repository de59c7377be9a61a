/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package patchgen

import (
	"context"
	"errors"
	"strings"

	"chainguard.dev/sonarfix/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// openAIProvider implements provider using OpenAI Chat Completions.
type openAIProvider struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

func newOpenAIProvider(model, apiKey string, o *options) *openAIProvider {
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
	return &openAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   o.maxTokens,
		temperature: o.temperature,
	}
}

func (p *openAIProvider) name() string { return "openai" }

// reasoning models only accept the default temperature.
func (p *openAIProvider) reasoning() bool {
	m := strings.ToLower(p.model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}

func (p *openAIProvider) complete(ctx context.Context, system, user string) (completion, error) {
	params := openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxCompletionTokens: openai.Int(p.maxTokens),
	}
	if !p.reasoning() {
		params.Temperature = openai.Float(p.temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return completion{}, err
	}
	if len(resp.Choices) == 0 {
		return completion{}, errors.New("no choices in response")
	}
	return completion{
		text:             resp.Choices[0].Message.Content,
		promptTokens:     resp.Usage.PromptTokens,
		completionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (p *openAIProvider) retryable(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && retry.RetryableStatus(apiErr.StatusCode)
}
