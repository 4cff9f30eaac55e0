package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTestTracer installs an in-memory exporter and a W3C propagator for
// the duration of the test.
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

func spanAttrs(s tracetest.SpanStub) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(s.Attributes))
	for _, kv := range s.Attributes {
		out[kv.Key] = kv.Value
	}
	return out
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func TestTracing_NamesSpanByRoute(t *testing.T) {
	exporter := setupTestTracer(t)
	h := storefrontRouter(Tracing())

	req := httptest.NewRequest(http.MethodGet, "/cart/items/p42", nil)
	req.Header.Set(DeviceIDHeader, "device-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	span := onlySpan(t, exporter)
	assert.Equal(t, "GET /cart/items/{id}", span.Name)
	assert.Equal(t, trace.SpanKindServer, span.SpanKind)
	assert.Equal(t, codes.Unset, span.Status.Code)

	attrs := spanAttrs(span)
	assert.Equal(t, "/cart/items/{id}", attrs["http.route"].AsString())
	assert.Equal(t, "/cart/items/p42", attrs["url.path"].AsString())
	assert.Equal(t, int64(200), attrs["http.response.status_code"].AsInt64())
	assert.True(t, attrs["storefront.device_identified"].AsBool())
	for _, v := range attrs {
		assert.NotEqual(t, "device-1", v.Emit(), "device ids stay out of spans")
	}
}

func TestTracing_StatusDecidesSpanOutcome(t *testing.T) {
	tests := []struct {
		method, path string
		status       int64
		want         codes.Code
	}{
		{http.MethodPost, "/cart/items", 422, codes.Unset},
		{http.MethodGet, "/boom", 503, codes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			exporter := setupTestTracer(t)
			storefrontRouter(Tracing()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tt.method, tt.path, nil))

			span := onlySpan(t, exporter)
			assert.Equal(t, tt.status, spanAttrs(span)["http.response.status_code"].AsInt64())
			assert.Equal(t, tt.want, span.Status.Code)
		})
	}
}

func TestTracing_UnroutedRequest(t *testing.T) {
	exporter := setupTestTracer(t)
	storefrontRouter(Tracing()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	span := onlySpan(t, exporter)
	assert.Equal(t, "GET unmatched", span.Name)
	assert.False(t, spanAttrs(span)["storefront.device_identified"].AsBool())
}

func TestTracing_ContinuesCallerTrace(t *testing.T) {
	exporter := setupTestTracer(t)

	var handlerSpan trace.SpanContext
	h := Tracing()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerSpan = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	span := onlySpan(t, exporter)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent.SpanID().String())
	assert.Equal(t, span.SpanContext.SpanID(), handlerSpan.SpanID())
	assert.Contains(t, rr.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestScheme(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "http", scheme(plain))

	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", scheme(forwarded))
}
