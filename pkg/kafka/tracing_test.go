package kafka

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return exporter
}

func TestHeaderCarrier_SetReplacesInPlace(t *testing.T) {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte("storefront.cart.updated")},
		{Key: "traceparent", Value: []byte("stale")},
	}
	c := NewHeaderCarrier(&headers)

	c.Set("traceparent", "fresh")
	c.Set("tracestate", "vendor=1")

	assert.Equal(t, "fresh", c.Get("traceparent"))
	assert.Equal(t, "vendor=1", c.Get("tracestate"))
	assert.Empty(t, c.Get("missing"))
	assert.Equal(t, []string{HeaderEventType, "traceparent", "tracestate"}, c.Keys())
	assert.Len(t, headers, 3)
}

func TestInjectExtract_CarriesSpanAcrossMessage(t *testing.T) {
	setupTestTracer(t)

	ctx, span := otel.Tracer("test").Start(context.Background(), "handler")
	defer span.End()

	msg := kafka.Message{Topic: "storefront.cart.updated"}
	InjectTrace(ctx, &msg)
	require.NotEmpty(t, NewHeaderCarrier(&msg.Headers).Get("traceparent"))

	remote := trace.SpanContextFromContext(ExtractTrace(context.Background(), msg))
	assert.True(t, remote.IsRemote())
	assert.Equal(t, span.SpanContext().TraceID(), remote.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), remote.SpanID())
}

func TestInjectTrace_NoSpanLeavesHeadersAlone(t *testing.T) {
	setupTestTracer(t)

	msg := kafka.Message{Headers: []kafka.Header{{Key: HeaderSource, Value: []byte("storefront-service")}}}
	InjectTrace(context.Background(), &msg)

	assert.Len(t, msg.Headers, 1)
	assert.False(t, trace.SpanContextFromContext(ExtractTrace(context.Background(), msg)).IsValid())
}

func TestExtractTrace_DoesNotMutateMessage(t *testing.T) {
	setupTestTracer(t)

	msg := kafka.Message{Headers: []kafka.Header{
		{Key: "traceparent", Value: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")},
	}}
	ctx := ExtractTrace(context.Background(), msg)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", trace.SpanContextFromContext(ctx).TraceID().String())
	assert.Len(t, msg.Headers, 1)
}
