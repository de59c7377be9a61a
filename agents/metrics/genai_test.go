/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if s, ok := m.Data.(metricdata.Sum[int64]); ok {
				sums[m.Name] = s
			}
		}
	}
	return sums
}

func TestRecordTokens(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewGenAIWithMeter(provider.Meter("test"))
	m.SetAttributeEnricher(TicketEnricher)

	ctx := WithTicket(context.Background(), "SCRUM-7")
	m.RecordTokens(ctx, "claude-sonnet-4-5", 120, 30)
	m.RecordTokens(ctx, "claude-sonnet-4-5", 80, 20)

	sums := collect(t, reader)
	for name, want := range map[string]int64{
		"genai.token.prompt":     200,
		"genai.token.completion": 50,
	} {
		s, ok := sums[name]
		if !ok || len(s.DataPoints) != 1 {
			t.Fatalf("%s: got %d data points, want 1", name, len(s.DataPoints))
		}
		dp := s.DataPoints[0]
		if dp.Value != want {
			t.Errorf("%s = %d, want %d", name, dp.Value, want)
		}
		if v, ok := dp.Attributes.Value(attribute.Key("ticket")); !ok || v.AsString() != "SCRUM-7" {
			t.Errorf("%s ticket attribute = %v, want SCRUM-7", name, v.AsString())
		}
		if v, _ := dp.Attributes.Value(attribute.Key("model")); v.AsString() != "claude-sonnet-4-5" {
			t.Errorf("%s model attribute = %q", name, v.AsString())
		}
	}
}

func TestRecordRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := NewGenAIWithMeter(provider.Meter("test"))

	ctx := context.Background()
	m.RecordRequest(ctx, "gpt-4o", nil)
	m.RecordRequest(ctx, "gpt-4o", nil)
	m.RecordRequest(ctx, "gpt-4o", errors.New("boom"))

	got := map[string]int64{}
	for _, dp := range collect(t, reader)["genai.requests"].DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("outcome"))
		got[v.AsString()] = dp.Value
	}
	if got["success"] != 2 || got["error"] != 1 {
		t.Errorf("requests by outcome = %v, want success=2 error=1", got)
	}
}

func TestTicketEnricherWithoutTicket(t *testing.T) {
	base := []attribute.KeyValue{attribute.String("model", "m")}
	if got := TicketEnricher(context.Background(), base); len(got) != 1 {
		t.Errorf("TicketEnricher() = %v, want base attributes only", got)
	}
}
