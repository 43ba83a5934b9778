package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("redis down")
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func post(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/investigations", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	h := NewMiddleware(NewMemoryStore(), 2, time.Minute, nil).Limit(okHandler())

	for range 2 {
		rec := post(h, "203.0.113.7:5000")
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := post(h, "203.0.113.7:5001")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	rec = post(h, "198.51.100.1:5000")
	assert.Equal(t, http.StatusCreated, rec.Code, "other addresses have their own window")
}

func TestMiddleware_ReadsAreNotCounted(t *testing.T) {
	h := NewMiddleware(NewMemoryStore(), 1, time.Minute, nil).Limit(okHandler())

	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/investigations", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}

	assert.Equal(t, http.StatusCreated, post(h, "203.0.113.7:5000").Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	h := NewMiddleware(failingStore{}, 1, time.Minute, nil).Limit(okHandler())

	for range 3 {
		assert.Equal(t, http.StatusCreated, post(h, "203.0.113.7:5000").Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", clientIP(req))

	req.RemoteAddr = "203.0.113.7"
	assert.Equal(t, "203.0.113.7", clientIP(req))
}
