package mockapi

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_AllowsBeforeThreshold(t *testing.T) {
	rl := newLoginRateLimiter()

	for i := 0; i < maxFailures-1; i++ {
		rl.recordFailure("a@example.com")
		blocked, _ := rl.check("a@example.com")
		assert.False(t, blocked, "should not block before reaching maxFailures")
	}
}

func TestRateLimiter_BlocksAfterThreshold(t *testing.T) {
	now := time.Now()
	rl := newLoginRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("a@example.com")
	}

	blocked, retryAfter := rl.check("a@example.com")
	require.True(t, blocked)
	assert.Equal(t, baseLockout, retryAfter)
}

func TestRateLimiter_ExponentialBackoff(t *testing.T) {
	now := time.Now()
	rl := newLoginRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("a@example.com")
	}
	_, first := rl.check("a@example.com")

	rl.recordFailure("a@example.com")
	_, second := rl.check("a@example.com")
	assert.Equal(t, 2*first, second)
}

func TestRateLimiter_MaxLockoutCap(t *testing.T) {
	now := time.Now()
	rl := newLoginRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < maxFailures+20; i++ {
		rl.recordFailure("a@example.com")
	}
	_, retryAfter := rl.check("a@example.com")
	assert.Equal(t, maxLockout, retryAfter)
}

func TestRateLimiter_SuccessResetsCounter(t *testing.T) {
	rl := newLoginRateLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("a@example.com")
	}
	blocked, _ := rl.check("a@example.com")
	require.True(t, blocked)

	rl.recordSuccess("a@example.com")
	blocked, _ = rl.check("a@example.com")
	assert.False(t, blocked)
}

func TestRateLimiter_IsolatesAccounts(t *testing.T) {
	rl := newLoginRateLimiter()

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("a@example.com")
	}
	blocked, _ := rl.check("b@example.com")
	assert.False(t, blocked, "rate limit for one account should not affect another")
}

func TestRateLimiter_ForgetsOldFailures(t *testing.T) {
	now := time.Now()
	rl := newLoginRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 0; i < maxFailures; i++ {
		rl.recordFailure("a@example.com")
	}

	now = now.Add(attemptExpiry + time.Minute)
	blocked, _ := rl.check("a@example.com")
	assert.False(t, blocked)

	rl.mu.Lock()
	_, exists := rl.attempts["a@example.com"]
	rl.mu.Unlock()
	assert.False(t, exists, "expired record should be dropped on check")
}

func TestWriteRateLimited(t *testing.T) {
	rec := httptest.NewRecorder()
	writeRateLimited(rec, 1500*time.Millisecond)
	assert.Equal(t, 429, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, "1", retryAfterString(0))
	assert.Equal(t, "90", retryAfterString(90*time.Second))
}
