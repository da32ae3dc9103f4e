// Package cache provides the per-instrument last-known-good signal store.
package cache

import (
	"sync"
	"time"

	"orderflow-signals/internal/models"
)

// SignalCache holds the latest valid signal per instrument. Reads never
// block on the writer: a reader observes either the previous or the new
// value, never a partial one. The cache never expires entries; staleness
// is derived by the reader from the signal's ProducedAt.
type SignalCache struct {
	mu      sync.RWMutex
	signals map[string]models.Signal
	updated map[string]time.Time
}

// New creates an empty signal cache.
func New() *SignalCache {
	return &SignalCache{
		signals: make(map[string]models.Signal),
		updated: make(map[string]time.Time),
	}
}

// Put stores the latest signal for its instrument, overwriting any
// previous value. Called only from the broadcaster's evaluation step.
func (c *SignalCache) Put(sig models.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[sig.Symbol] = sig
	c.updated[sig.Symbol] = sig.ProducedAt
}

// Get returns the last written signal for the instrument. The second
// return value is false before the first successful evaluation.
func (c *SignalCache) Get(symbol string) (models.Signal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.signals[symbol]
	return sig, ok
}

// LastUpdated returns the time of the last successful update for the
// instrument, or false if there has been none.
func (c *SignalCache) LastUpdated(symbol string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.updated[symbol]
	return t, ok
}

// Age returns how stale the cached signal is at time now. The caller
// applies its own threshold for treating the value as stale.
func (c *SignalCache) Age(symbol string, now time.Time) (time.Duration, bool) {
	t, ok := c.LastUpdated(symbol)
	if !ok {
		return 0, false
	}
	return now.Sub(t), true
}

// Symbols returns the instruments with at least one cached signal.
func (c *SignalCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	symbols := make([]string, 0, len(c.signals))
	for s := range c.signals {
		symbols = append(symbols, s)
	}
	return symbols
}
