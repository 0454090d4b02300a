package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResp(headers map[string]string) *http.Response {
	rec := httptest.NewRecorder()
	for k, v := range headers {
		rec.Header().Set(k, v)
	}
	rec.WriteHeader(http.StatusTooManyRequests)
	return rec.Result()
}

func TestLimiter_Handle429UsesRetryAfterSeconds(t *testing.T) {
	rl := New("example.com")
	resp := newResp(map[string]string{"Retry-After": "2"})

	wait := rl.Handle429(resp)
	assert.True(t, wait > time.Second && wait < 3*time.Second, "expected wait near 2s, got %v", wait)
	assert.True(t, rl.IsBlocked())
}

func TestLimiter_Handle429BacksOffExponentiallyWithoutHeader(t *testing.T) {
	rl := New("example.com")

	first := rl.Handle429(newResp(nil))
	second := rl.Handle429(newResp(nil))

	assert.True(t, second > first, "second backoff (%v) should exceed first (%v)", second, first)
}

func TestLimiter_WaitIfBlockedReturnsFalseWhenNotBlocked(t *testing.T) {
	rl := New("example.com")
	assert.False(t, rl.WaitIfBlocked())
}

func TestLimiter_ReportSuccessClearsHitCounter(t *testing.T) {
	rl := New("example.com")
	rl.Handle429(newResp(map[string]string{"Retry-After": "60"}))
	require.True(t, rl.IsBlocked())

	rl.ReportSuccess()
	assert.Equal(t, int32(0), rl.consecutiveHits.Load())
}

func TestManager_GetReturnsSameLimiterPerHost(t *testing.T) {
	m := NewManager()
	a := m.Get("example.com")
	b := m.Get("example.com")
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.ActiveHosts())

	m.Get("other.com")
	assert.Equal(t, 2, m.ActiveHosts())
}
