package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/lending-daemon-go/lending/oteladapters"
)

type foreignSpanContext struct{}

func (f *foreignSpanContext) SetStatus(string)            {}
func (f *foreignSpanContext) AddAttribute(string, string) {}

func newInMemoryTracingCollector() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	// setup
	collector, exporter := newInMemoryTracingCollector()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "lendingstore.lock_item", map[string]string{"operation": "lock_item"})
	spanCtx.AddAttribute("item_id", "widget")
	collector.FinishSpan(spanCtx, "success", map[string]string{"row_count": "1"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "lendingstore.lock_item", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assertSpanHasAttribute(t, span, "operation", "lock_item")
	assertSpanHasAttribute(t, span, "item_id", "widget")
	assertSpanHasAttribute(t, span, "row_count", "1")
	assertSpanHasAttribute(t, span, "status", "success")
}

func Test_TracingCollector_MapsStatusCodes(t *testing.T) {
	testCases := []struct {
		status string
		code   codes.Code
	}{
		{status: "success", code: codes.Ok},
		{status: "idempotent", code: codes.Ok},
		{status: "error", code: codes.Error},
		{status: "canceled", code: codes.Error},
		{status: "timeout", code: codes.Error},
		{status: "concurrency_conflict", code: codes.Error},
		{status: "rejected", code: codes.Error},
		{status: "something_else", code: codes.Unset},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// setup
			collector, exporter := newInMemoryTracingCollector()

			// act
			_, spanCtx := collector.StartSpan(context.Background(), "daemon.run_pass", nil)
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.code, spans[0].Status.Code)
			assertSpanHasAttribute(t, spans[0], "status", tc.status)
		})
	}
}

func Test_TracingCollector_NestsChildSpans(t *testing.T) {
	// setup
	collector, exporter := newInMemoryTracingCollector()

	// act
	parentCtx, parent := collector.StartSpan(context.Background(), "daemon.run_pass", nil)
	_, child := collector.StartSpan(parentCtx, "lendingstore.transaction", nil)
	collector.FinishSpan(child, "success", nil)
	collector.FinishSpan(parent, "success", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "lendingstore.transaction", spans[0].Name)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
}

func Test_TracingCollector_IgnoresForeignSpanContexts(t *testing.T) {
	// setup
	collector, exporter := newInMemoryTracingCollector()

	// act & assert
	assert.NotPanics(t, func() {
		collector.FinishSpan(&foreignSpanContext{}, "success", nil)
		collector.FinishSpan(nil, "success", nil)
	})
	assert.Empty(t, exporter.GetSpans())
}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, expectedValue string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == expectedValue {
			return
		}
	}

	assert.Failf(t, "attribute missing", "span %s should have attribute %s=%s", span.Name, key, expectedValue)
}
