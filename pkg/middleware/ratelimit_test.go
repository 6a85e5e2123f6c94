package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmtuentertainment/wvwo-storefront-sub002/pkg/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_RequestsWithinLimit_Pass(t *testing.T) {
	var buf bytes.Buffer
	handler := RateLimit(10, 10, newTestLogger(&buf))(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "request %d should pass", i+1)
	}
}

func TestRateLimit_ExceedingLimit_Returns429(t *testing.T) {
	var buf bytes.Buffer
	handler := RateLimit(1, 3, newTestLogger(&buf))(okHandler())

	var rateLimited bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code == http.StatusTooManyRequests {
			rateLimited = true
			assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
			assert.Equal(t, "1", rr.Header().Get("Retry-After"))
			break
		}
	}

	assert.True(t, rateLimited, "should have been rate limited after exceeding burst")
	assert.Contains(t, buf.String(), "rate limit exceeded")
}

func TestRateLimit_SessionsHaveIndependentBuckets(t *testing.T) {
	var buf bytes.Buffer
	handler := RateLimit(1, 1, newTestLogger(&buf))(okHandler())

	send := func(session string) int {
		ctx := logger.WithSessionID(context.Background(), session)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil).WithContext(ctx)
		req.RemoteAddr = "10.0.0.1:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, send("session-a"))
	assert.Equal(t, http.StatusTooManyRequests, send("session-a"))
	assert.Equal(t, http.StatusOK, send("session-b"))
}

func TestVisitorStore_SweepsStaleEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newVisitorStore(1, 1, time.Minute)
	store.nowFunc = func() time.Time { return now }
	store.lastSweep = now

	store.getVisitor("a")
	store.getVisitor("b")
	assert.Equal(t, 2, store.len())

	now = now.Add(2 * time.Minute)
	store.getVisitor("c")
	assert.Equal(t, 1, store.len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"remote addr", nil, "10.1.1.1:5000", "10.1.1.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.1.1.1:5000", "203.0.113.5"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7"}, "10.1.1.1:5000", "198.51.100.7"},
		{"garbage forwarded", map[string]string{"X-Forwarded-For": "nope"}, "10.1.1.1:5000", "10.1.1.1"},
		{"no port", nil, "10.1.1.1", "10.1.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
