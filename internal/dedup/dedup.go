// Package dedup suppresses repeat alerts for a symbol within a cooldown window.
package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/logger"
)

// DefaultWindow is the suppression window used when none is configured.
const DefaultWindow = 6 * time.Hour

// Store persists alert marks beyond the lifetime of the process.
type Store interface {
	// LastAlert returns the most recent mark for symbol, if any.
	LastAlert(ctx context.Context, symbol string) (time.Time, bool, error)
	// Claim records a mark at `at` only if no mark newer than at-window exists.
	// It reports whether this caller won the mark.
	Claim(ctx context.Context, symbol string, at time.Time, window time.Duration) (bool, error)
	// Record writes a mark unconditionally.
	Record(ctx context.Context, symbol string, at time.Time, window time.Duration) error
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithStore backs the cache with durable storage.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// Cache maps symbol to last-alert time. Expiry is lazy: an entry simply stops
// suppressing once the window has elapsed.
type Cache struct {
	window time.Duration
	now    func() time.Time
	store  Store

	mu    sync.Mutex
	last  map[string]time.Time
	locks map[string]*sync.Mutex
}

func New(window time.Duration, opts ...Option) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cache{
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the suppression window.
func (c *Cache) Window() time.Duration {
	return c.window
}

func (c *Cache) symbolLock(symbol string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		c.locks[symbol] = l
	}
	return l
}

func (c *Cache) lastSeen(symbol string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.last[symbol]
	return t, ok
}

func (c *Cache) remember(symbol string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.last[symbol]; !ok || at.After(prev) {
		c.last[symbol] = at
	}
}

// suppressed must be called with the symbol lock held.
func (c *Cache) suppressed(ctx context.Context, symbol string, now time.Time) bool {
	if last, ok := c.lastSeen(symbol); ok && now.Sub(last) < c.window {
		return true
	}
	if c.store == nil {
		return false
	}
	last, ok, err := c.store.LastAlert(ctx, symbol)
	if err != nil {
		logger.Warn("Dedup store lookup failed for %s: %v", symbol, err)
		return false
	}
	if !ok {
		return false
	}
	c.remember(symbol, last)
	return now.Sub(last) < c.window
}

// ShouldSuppress reports whether symbol was alerted within the window.
func (c *Cache) ShouldSuppress(ctx context.Context, symbol string) bool {
	l := c.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()
	return c.suppressed(ctx, symbol, c.now())
}

// MarkAlert records an alert for symbol at the current time.
func (c *Cache) MarkAlert(ctx context.Context, symbol string) {
	l := c.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	now := c.now()
	c.remember(symbol, now)
	if c.store != nil {
		if err := c.store.Record(ctx, symbol, now, c.window); err != nil {
			logger.Warn("Failed to persist alert mark for %s: %v", symbol, err)
		}
	}
}

// TryMark atomically checks and marks symbol. It returns false when the
// symbol is still suppressed, including when another process claimed it first.
func (c *Cache) TryMark(ctx context.Context, symbol string) bool {
	l := c.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	now := c.now()
	if c.suppressed(ctx, symbol, now) {
		return false
	}
	if c.store != nil {
		won, err := c.store.Claim(ctx, symbol, now, c.window)
		if err != nil {
			logger.Warn("Dedup store claim failed for %s, using in-process mark: %v", symbol, err)
		} else if !won {
			return false
		}
	}
	c.remember(symbol, now)
	return true
}
