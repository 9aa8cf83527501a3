// Package ratelimit bounds the RPC cost of entry and eligibility checks by
// rate-limiting them per wallet.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
)

// staleAfter is how long an idle wallet's limiter is kept before eviction
const staleAfter = 10 * time.Minute

// Config holds the per-wallet limit
type Config struct {
	ChecksPerSecond float64
	Burst           int
}

type walletLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// PerWallet tracks one token bucket per wallet
type PerWallet struct {
	mu       sync.Mutex
	config   Config
	clock    adapter.Clock
	limiters map[string]*walletLimiter
}

// NewPerWallet creates a per-wallet limiter
func NewPerWallet(config Config, clock adapter.Clock) *PerWallet {
	if config.ChecksPerSecond <= 0 {
		config.ChecksPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 3
	}
	return &PerWallet{
		config:   config,
		clock:    clock,
		limiters: make(map[string]*walletLimiter),
	}
}

// Allow reports whether the wallet may perform another check right now
func (p *PerWallet) Allow(wallet string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	wl, ok := p.limiters[wallet]
	if !ok {
		wl = &walletLimiter{
			limiter: rate.NewLimiter(rate.Limit(p.config.ChecksPerSecond), p.config.Burst),
		}
		p.limiters[wallet] = wl
		p.evictStaleLocked(now)
	}
	wl.lastSeen = now

	return wl.limiter.AllowN(now, 1)
}

// evictStaleLocked drops limiters for wallets not seen recently so the map
// does not grow without bound. Called with the mutex held.
func (p *PerWallet) evictStaleLocked(now time.Time) {
	for wallet, wl := range p.limiters {
		if now.Sub(wl.lastSeen) > staleAfter {
			delete(p.limiters, wallet)
		}
	}
}
