package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRequests   = 10
	DefaultWindow        = time.Minute
	DefaultSweepInterval = time.Minute
)

// Decision represents the outcome of a rate limit check
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at,omitempty"`
}

// Config holds limiter settings. Now is the time source; it defaults to
// time.Now and is injectable for tests.
type Config struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// window tracks one identifier's request count in the current fixed window
type window struct {
	count   int
	resetAt time.Time
}

// Limiter implements per-identifier fixed-window rate limiting
type Limiter struct {
	logger  *zap.Logger
	max     int
	window  time.Duration
	sweep   time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*window
	stop    chan struct{}
}

// NewLimiter creates a new rate limiter
func NewLimiter(cfg Config, logger *zap.Logger) *Limiter {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Limiter{
		logger:  logger.Named("ratelimit"),
		max:     cfg.MaxRequests,
		window:  cfg.Window,
		sweep:   cfg.SweepInterval,
		now:     cfg.Now,
		entries: make(map[string]*window),
		stop:    make(chan struct{}),
	}
}

// Max returns the per-window request allowance
func (l *Limiter) Max() int {
	return l.max
}

// Check records a request for the identifier and reports whether it is
// allowed. A rejected request does not consume quota.
func (l *Limiter) Check(identifier string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[identifier]
	if !ok || !now.Before(entry.resetAt) {
		entry = &window{count: 1, resetAt: now.Add(l.window)}
		l.entries[identifier] = entry
		return Decision{Allowed: true, Remaining: l.max - 1, ResetAt: entry.resetAt}
	}

	if entry.count >= l.max {
		return Decision{Allowed: false, Remaining: 0, ResetAt: entry.resetAt}
	}

	entry.count++
	return Decision{Allowed: true, Remaining: l.max - entry.count, ResetAt: entry.resetAt}
}

// Status reports the identifier's current window without consuming quota.
// An identifier with no open window reports the full quota and a zero
// reset time.
func (l *Limiter) Status(identifier string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[identifier]
	if !ok || !now.Before(entry.resetAt) {
		return Decision{Allowed: true, Remaining: l.max}
	}

	remaining := l.max - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: remaining > 0, Remaining: remaining, ResetAt: entry.resetAt}
}

// Reset clears the identifier's window
func (l *Limiter) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, identifier)
}

// Start starts the background sweep that evicts expired windows
func (l *Limiter) Start(ctx context.Context) {
	go l.sweepLoop(ctx)
}

// Stop stops the background sweep
func (l *Limiter) Stop() {
	close(l.stop)
}

// sweepLoop runs the periodic eviction of expired windows
func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			l.sweepExpired()
		}
	}
}

// sweepExpired removes windows whose reset time has passed
func (l *Limiter) sweepExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, entry := range l.entries {
		if !now.Before(entry.resetAt) {
			delete(l.entries, id)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("Swept expired rate limit windows",
			zap.Int("removed", removed))
	}
}
