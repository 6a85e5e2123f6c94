package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		tp.Shutdown(context.Background()) //nolint:errcheck
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})

	return exporter
}

func attrValue(span tracetest.SpanStub, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func onlySpan(t *testing.T, exporter *tracetest.InMemoryExporter) tracetest.SpanStub {
	t.Helper()
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return spans[0]
}

func TestTracing_SpanNamedAfterCartRoute(t *testing.T) {
	exporter := setupTestTracer(t)
	h := cartRouter(Tracing("cart"), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := serve(h, http.MethodPut, "/api/v1/cart/items/boots-1")
	require.Equal(t, http.StatusOK, rec.Code)

	span := onlySpan(t, exporter)
	assert.Equal(t, "PUT /api/v1/cart/items/{productId}", span.Name)

	route, ok := attrValue(span, "http.route")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/cart/items/{productId}", route.AsString())

	target, ok := attrValue(span, "http.target")
	require.True(t, ok)
	assert.Equal(t, "/api/v1/cart/items/boots-1", target.AsString())

	status, ok := attrValue(span, "http.status_code")
	require.True(t, ok)
	assert.Equal(t, int64(200), status.AsInt64())

	svc, ok := attrValue(span, "service.name")
	require.True(t, ok)
	assert.Equal(t, "cart", svc.AsString())
}

func TestTracing_UnmatchedRoute(t *testing.T) {
	exporter := setupTestTracer(t)
	h := cartRouter(Tracing("cart"), func(w http.ResponseWriter, r *http.Request) {})

	serve(h, http.MethodGet, "/catalog/boots-1")

	span := onlySpan(t, exporter)
	assert.Equal(t, "GET unmatched", span.Name)
	assert.Equal(t, codes.Unset, span.Status.Code, "404 is not a server error")
}

func TestTracing_RecordsSessionID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid uuid", "6F9619FF-8B86-D011-B42D-00C04FC964FF", "6f9619ff-8b86-d011-b42d-00c04fc964ff"},
		{"malformed", "not-a-session", ""},
		{"absent", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exporter := setupTestTracer(t)
			h := cartRouter(Tracing("cart"), func(w http.ResponseWriter, r *http.Request) {})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
			if tc.header != "" {
				req.Header.Set(HeaderSessionID, tc.header)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			v, ok := attrValue(onlySpan(t, exporter), "cart.session_id")
			if tc.want == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.want, v.AsString())
		})
	}
}

func TestTracing_RecordsCorrelationID(t *testing.T) {
	exporter := setupTestTracer(t)

	r := chi.NewRouter()
	r.Use(RequestLogging(logger.Discard()))
	r.Use(Tracing("cart"))
	r.Delete("/api/v1/cart/items/{productId}", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/cart/items/cap-3", nil)
	req.Header.Set(HeaderCorrelationID, "corr-cart-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	v, ok := attrValue(onlySpan(t, exporter), "correlation_id")
	require.True(t, ok)
	assert.Equal(t, "corr-cart-42", v.AsString())
}

func TestTracing_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   codes.Code
	}{
		{"rule rejection", http.StatusUnprocessableEntity, codes.Unset},
		{"storage unavailable", http.StatusServiceUnavailable, codes.Error},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exporter := setupTestTracer(t)
			h := cartRouter(Tracing("cart"), func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})

			serve(h, http.MethodPut, "/api/v1/cart/items/rifle-1")

			assert.Equal(t, tc.want, onlySpan(t, exporter).Status.Code)
		})
	}
}

func TestTracing_ContinuesStorefrontTrace(t *testing.T) {
	exporter := setupTestTracer(t)
	h := cartRouter(Tracing("cart"), func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	span := onlySpan(t, exporter)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent.SpanID().String())
	assert.Contains(t, rec.Header().Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}
