/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// AttributeEnricher enriches metric attributes with additional context.
// The enricher receives the base attributes (model, provider) and returns
// the enriched set.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

type ticketKey struct{}

// WithTicket returns a context carrying the key of the ticket being worked.
func WithTicket(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ticketKey{}, key)
}

// TicketFromContext returns the ticket key stored by WithTicket, if any.
func TicketFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(ticketKey{}).(string)
	return key, ok && key != ""
}

// TicketEnricher adds a "ticket" attribute when the context carries one.
func TicketEnricher(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	if key, ok := TicketFromContext(ctx); ok {
		return append(baseAttrs, attribute.String("ticket", key))
	}
	return baseAttrs
}
