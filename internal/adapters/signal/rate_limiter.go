package signal

import (
	"sync"
	"time"

	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// AcquireRateLimiter caps acquire attempts per identity over a sliding
// window, so a misbehaving client cannot hammer a busy channel.
type AcquireRateLimiter struct {
	mu        sync.Mutex
	history   map[domain.Identity][]time.Time
	limit     int
	interval  time.Duration
	lastPrune time.Time
}

func NewAcquireRateLimiter(limit int, interval time.Duration) *AcquireRateLimiter {
	return &AcquireRateLimiter{
		history:  make(map[domain.Identity][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *AcquireRateLimiter) Allow(id domain.Identity) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	// Identities come and go with sessions; without pruning the history
	// map grows for the lifetime of the server.
	if now.Sub(rl.lastPrune) >= rl.interval {
		rl.pruneLocked(windowStart)
		rl.lastPrune = now
	}

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

func (rl *AcquireRateLimiter) pruneLocked(windowStart time.Time) {
	for id, attempts := range rl.history {
		live := false
		for _, t := range attempts {
			if t.After(windowStart) {
				live = true
				break
			}
		}
		if !live {
			delete(rl.history, id)
		}
	}
}
