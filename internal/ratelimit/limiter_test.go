package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
)

func TestAllowWithinBurst(t *testing.T) {
	clock := adapter.NewManualClock(time.Now())
	limiter := NewPerWallet(Config{ChecksPerSecond: 1, Burst: 3}, clock)

	assert.True(t, limiter.Allow("0xAlice"))
	assert.True(t, limiter.Allow("0xAlice"))
	assert.True(t, limiter.Allow("0xAlice"))
	assert.False(t, limiter.Allow("0xAlice"))
}

func TestAllowRefillsOverTime(t *testing.T) {
	clock := adapter.NewManualClock(time.Now())
	limiter := NewPerWallet(Config{ChecksPerSecond: 1, Burst: 1}, clock)

	assert.True(t, limiter.Allow("0xAlice"))
	assert.False(t, limiter.Allow("0xAlice"))

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("0xAlice"))
}

func TestAllowIsPerWallet(t *testing.T) {
	clock := adapter.NewManualClock(time.Now())
	limiter := NewPerWallet(Config{ChecksPerSecond: 1, Burst: 1}, clock)

	assert.True(t, limiter.Allow("0xAlice"))
	assert.False(t, limiter.Allow("0xAlice"))

	// Alice exhausting her bucket never affects Bob
	assert.True(t, limiter.Allow("0xBob"))
}

func TestStaleWalletsAreEvicted(t *testing.T) {
	clock := adapter.NewManualClock(time.Now())
	limiter := NewPerWallet(Config{ChecksPerSecond: 1, Burst: 1}, clock)

	limiter.Allow("0xAlice")
	limiter.Allow("0xBob")
	assert.Len(t, limiter.limiters, 2)

	clock.Advance(staleAfter + time.Minute)
	limiter.Allow("0xCarol")

	// Only the fresh wallet survives
	assert.Len(t, limiter.limiters, 1)
	assert.Contains(t, limiter.limiters, "0xCarol")
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	clock := adapter.NewManualClock(time.Now())
	limiter := NewPerWallet(Config{}, clock)

	// Default burst of 3 at 1/s
	assert.True(t, limiter.Allow("0xAlice"))
	assert.True(t, limiter.Allow("0xAlice"))
	assert.True(t, limiter.Allow("0xAlice"))
	assert.False(t, limiter.Allow("0xAlice"))
}
