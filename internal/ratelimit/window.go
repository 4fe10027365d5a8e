// Package ratelimit throttles rapid repeat lead submissions.
//
// The limiters here guard against accidental double submits (a user hammering
// the send button, a page retrying on reload). They are best-effort and are not
// an abuse-prevention or security control: the in-memory Window only sees
// traffic reaching one process, and RedisWindow fails open when Redis is down.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether another attempt for identifier is allowed at now.
type Limiter interface {
	Allow(ctx context.Context, identifier string, now time.Time) bool
}

// Config tunes a sliding window limiter.
type Config struct {
	// Window is the sliding window length.
	Window time.Duration
	// Max is the number of accepted attempts per identifier per window.
	Max int
	// Capacity is the number of tracked identifiers above which eviction runs.
	Capacity int
	// EvictBatch is how many of the oldest-inserted identifiers are dropped.
	// It is capped at Capacity.
	EvictBatch int
}

// DefaultConfig returns 5 attempts per 60s, capped at 1000 identifiers.
func DefaultConfig() Config {
	return Config{
		Window:     time.Minute,
		Max:        5,
		Capacity:   1000,
		EvictBatch: 100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Max <= 0 {
		c.Max = d.Max
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.EvictBatch <= 0 {
		c.EvictBatch = d.EvictBatch
	}
	if c.EvictBatch > c.Capacity {
		c.EvictBatch = c.Capacity
	}
	return c
}

// Window is an in-memory sliding window limiter for a single process.
//
// Each identifier keeps its accepted attempt timestamps until the whole
// identifier is evicted. Eviction is a crude capacity bound, not LRU: an
// evicted identifier simply starts a fresh window.
type Window struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string][]time.Time
	order   []string // identifiers in insertion order
}

// NewWindow creates an in-memory limiter. Zero config values take defaults.
func NewWindow(cfg Config) *Window {
	return &Window{
		cfg:     cfg.withDefaults(),
		entries: make(map[string][]time.Time),
	}
}

// Allow records an attempt and reports whether it fits in the window.
// Rejected attempts are not recorded.
func (w *Window) Allow(_ context.Context, identifier string, now time.Time) bool {
	return w.TryAcquire(identifier, now)
}

// TryAcquire is Allow without a context.
func (w *Window) TryAcquire(identifier string, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	stamps, ok := w.entries[identifier]
	if !ok {
		w.order = append(w.order, identifier)
	}

	cutoff := now.Add(-w.cfg.Window)
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= w.cfg.Max {
		w.entries[identifier] = kept
		return false
	}

	w.entries[identifier] = append(kept, now)
	if !ok {
		w.evictLocked()
	}
	return true
}

func (w *Window) evictLocked() {
	if len(w.entries) <= w.cfg.Capacity {
		return
	}
	// The newest identifier is the one just admitted; it always survives.
	n := min(w.cfg.EvictBatch, len(w.order)-1)
	for _, id := range w.order[:n] {
		delete(w.entries, id)
	}
	w.order = append(w.order[:0:0], w.order[n:]...)
}

// Len returns the number of tracked identifiers.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Reset forgets identifier's history.
func (w *Window) Reset(identifier string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[identifier]; !ok {
		return
	}
	delete(w.entries, identifier)
	for i, id := range w.order {
		if id == identifier {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}
