package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiterEntries = 10000
	limiterIdleTimeout       = 10 * time.Minute
	limiterCleanupInterval   = 5 * time.Minute
)

// limiterEntry tracks one identifier's token bucket and its last use.
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (typically per-IP) rate limiting with
// a token bucket per identifier and LRU eviction so the tracked set cannot
// grow without bound.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*list.Element
	lru        *list.List // front = most recently used
	rate       rate.Limit
	burst      int
	maxEntries int

	logger      *slog.Logger
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond with the
// given burst per identifier. A background goroutine prunes identifiers
// idle for more than ten minutes; call Stop to end it.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		limiters:    make(map[string]*list.Element),
		lru:         list.New(),
		rate:        rate.Limit(requestsPerSecond),
		burst:       burst,
		maxEntries:  defaultMaxLimiterEntries,
		logger:      logger,
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow reports whether a request from the given identifier may proceed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.limiters[identifier]; ok {
		rl.lru.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		return entry.limiter.Allow()
	}

	if rl.lru.Len() >= rl.maxEntries {
		rl.evictOldest()
	}

	entry := &limiterEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rl.rate, rl.burst),
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lru.PushFront(entry)
	return entry.limiter.Allow()
}

// Stop terminates the background cleanup goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// evictOldest drops the least recently used entry. Caller holds rl.mu.
func (rl *RateLimiter) evictOldest() {
	oldest := rl.lru.Back()
	if oldest == nil {
		return
	}
	entry := oldest.Value.(*limiterEntry)
	rl.lru.Remove(oldest)
	delete(rl.limiters, entry.identifier)
	rl.logger.Debug("Evicted rate limiter entry", "identifier", entry.identifier)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.pruneIdle()
		case <-rl.stopCleanup:
			return
		}
	}
}

// pruneIdle removes entries not used within the idle timeout.
func (rl *RateLimiter) pruneIdle() {
	cutoff := time.Now().Add(-limiterIdleTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var pruned int
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if entry.lastAccess.After(cutoff) {
			// LRU order means everything further forward is newer.
			break
		}
		prev := elem.Prev()
		rl.lru.Remove(elem)
		delete(rl.limiters, entry.identifier)
		pruned++
		elem = prev
	}

	if pruned > 0 {
		rl.logger.Debug("Pruned idle rate limiter entries",
			"pruned", pruned,
			"remaining", rl.lru.Len())
	}
}
