/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records generative model usage as OpenTelemetry metrics.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the meter shared by every patch provider. The model name is a
// dimension on the recorded values.
const MeterName = "chainguard.dev/sonarfix/agents"

// GenAI provides OpenTelemetry metrics for generative model calls: token
// usage (prompt and completion) and request outcomes. Counters that fail to
// initialize degrade to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	requests         metric.Int64Counter
	attrEnricher     AttributeEnricher
}

// NewGenAI creates a GenAI metrics instance on the given meter.
func NewGenAI(meterName string) *GenAI {
	return NewGenAIWithMeter(otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0")))
}

// NewGenAIWithMeter creates a GenAI metrics instance on an explicit meter.
func NewGenAIWithMeter(meter metric.Meter) *GenAI {
	promptTokens, err := meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("The number of prompt tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create prompt tokens counter, metrics will be disabled", "error", err)
		promptTokens = noop.Int64Counter{}
	}

	completionTokens, err := meter.Int64Counter("genai.token.completion",
		metric.WithDescription("The number of completion tokens used"),
		metric.WithUnit("{tokens}"))
	if err != nil {
		slog.Warn("Failed to create completion tokens counter, metrics will be disabled", "error", err)
		completionTokens = noop.Int64Counter{}
	}

	requests, err := meter.Int64Counter("genai.requests",
		metric.WithDescription("The number of patch requests by outcome"),
		metric.WithUnit("{requests}"))
	if err != nil {
		slog.Warn("Failed to create request counter, metrics will be disabled", "error", err)
		requests = noop.Int64Counter{}
	}

	return &GenAI{
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		requests:         requests,
	}
}

// SetAttributeEnricher sets the enricher called before each recording.
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.attrEnricher = enricher
}

func (m *GenAI) attributes(ctx context.Context, model string, attrs []attribute.KeyValue) []attribute.KeyValue {
	baseAttrs := []attribute.KeyValue{
		attribute.String("model", model),
	}
	if m.attrEnricher != nil {
		baseAttrs = m.attrEnricher(ctx, baseAttrs)
	}
	return append(baseAttrs, attrs...)
}

// RecordTokens records prompt and completion token usage.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64, attrs ...attribute.KeyValue) {
	all := m.attributes(ctx, model, attrs)
	m.promptTokens.Add(ctx, promptTokens, metric.WithAttributes(all...))
	m.completionTokens.Add(ctx, completionTokens, metric.WithAttributes(all...))
}

// RecordRequest records one patch request and whether it succeeded.
func (m *GenAI) RecordRequest(ctx context.Context, model string, err error, attrs ...attribute.KeyValue) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	all := m.attributes(ctx, model, append(attrs, attribute.String("outcome", outcome)))
	m.requests.Add(ctx, 1, metric.WithAttributes(all...))
}
