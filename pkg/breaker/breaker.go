// Package breaker implements a per-key circuit breaker with bounded
// exponential backoff. One instance is used per failure domain (resolve
// identifiers, operator feed league ids).
package breaker

import (
	"sync"
	"time"
)

const maxShift = 5

type entry struct {
	failures     int
	blockedUntil time.Time
}

// Breaker tracks failures per key and blocks further attempts for a
// bounded, exponentially growing window. A success clears the key
// entirely; blockedUntil only ever advances on failure.
type Breaker[K comparable] struct {
	base time.Duration
	max  time.Duration

	mu      sync.Mutex
	entries map[K]entry
	now     func() time.Time
}

// New creates a breaker with the given base delay and backoff ceiling.
func New[K comparable](base, max time.Duration) *Breaker[K] {
	return &Breaker[K]{
		base:    base,
		max:     max,
		entries: make(map[K]entry),
		now:     time.Now,
	}
}

// Blocked reports whether the key is inside an open backoff window.
func (b *Breaker[K]) Blocked(key K) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return false
	}
	return b.now().Before(e.blockedUntil)
}

// BlockedFor returns the remaining backoff window for the key, or zero.
func (b *Breaker[K]) BlockedFor(key K) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return 0
	}
	if d := e.blockedUntil.Sub(b.now()); d > 0 {
		return d
	}
	return 0
}

// Failure records a failure for the key and advances its backoff window
// to now + min(max, base * 2^min(failures, 5)).
func (b *Breaker[K]) Failure(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entries[key]
	shift := e.failures
	if shift > maxShift {
		shift = maxShift
	}
	delay := b.base << shift
	if delay > b.max {
		delay = b.max
	}
	e.failures++
	e.blockedUntil = b.now().Add(delay)
	b.entries[key] = e
}

// Success clears all failure state for the key.
func (b *Breaker[K]) Success(key K) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
}

// Failures returns the recorded failure count for the key.
func (b *Breaker[K]) Failures(key K) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[key].failures
}
