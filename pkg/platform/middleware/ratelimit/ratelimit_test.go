package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audittrail/pkg/requestcontext"
)

func TestLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(1, 2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "refilled after one second")
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New(5, 5, time.Minute)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(50 * time.Second)
	l.Allow("fresh")
	now = now.Add(30 * time.Second)

	assert.Equal(t, 1, l.Prune())
	_, kept := l.visitors["fresh"]
	assert.True(t, kept)
}

func TestLimiter_Middleware(t *testing.T) {
	l := New(0.5, 1, time.Minute)
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	do := func(ip string) *httptest.ResponseRecorder {
		ctx := requestcontext.WithClientMetadata(context.Background(), ip, "test")
		req := httptest.NewRequest(http.MethodGet, "/trails", nil).WithContext(requestcontext.WithTime(ctx, at))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusOK, do("192.0.2.1").Code)
	rec := do("192.0.2.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate_limited","error_description":"too many requests"}`, rec.Body.String())
	assert.Equal(t, http.StatusOK, do("192.0.2.2").Code)

	at = at.Add(2 * time.Second)
	assert.Equal(t, http.StatusOK, do("192.0.2.1").Code, "request time refills the bucket")
}
