package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/vitalvas/gatekeeper/clock"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultMaxClockRewind = time.Second
)

// Config configures a Limiter.
type Config struct {
	// Default is the bucket shape for keys without an override. Required.
	Default Limit

	// Overrides maps specific keys to their own bucket shape. An override
	// always wins over Default.
	Overrides map[string]Limit

	// Shards is the number of independently locked bucket maps.
	// Defaults to DefaultShards.
	Shards int

	// IdleTimeout is how long a bucket must go unused before the sweeper
	// may evict it. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// SweepInterval is the period of the eviction sweeper started by Run.
	// Defaults to DefaultSweepInterval.
	SweepInterval time.Duration

	// MaxClockRewind is how far time may appear to move backwards for a
	// key before checks fail with ErrClockRewind. Smaller regressions are
	// absorbed. Defaults to DefaultMaxClockRewind.
	MaxClockRewind time.Duration

	// Clock defaults to the system clock.
	Clock clock.Clock

	// OnEvict, when set, is called by the sweeper with the number of
	// buckets each pass removed.
	OnEvict func(n int)
}

// Limiter applies token bucket limits per key. It is safe for concurrent use.
type Limiter struct {
	store     *Store
	def       Limit
	overrides map[string]Limit

	idle      time.Duration
	interval  time.Duration
	maxRewind time.Duration
	clock     clock.Clock
	onEvict   func(int)
}

// New validates cfg and returns a Limiter with its own Store.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Default.Validate(); err != nil {
		return nil, fmt.Errorf("default limit: %w", err)
	}

	overrides := make(map[string]Limit, len(cfg.Overrides))
	for key, l := range cfg.Overrides {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("override %q: %w", key, err)
		}

		overrides[key] = l
	}

	if cfg.IdleTimeout < 0 || cfg.SweepInterval < 0 || cfg.MaxClockRewind < 0 {
		return nil, fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}

	shards := cfg.Shards
	if shards == 0 {
		shards = DefaultShards
	}

	store, err := NewStore(shards)
	if err != nil {
		return nil, err
	}

	return &Limiter{
		store:     store,
		def:       cfg.Default,
		overrides: overrides,
		idle:      orDefault(cfg.IdleTimeout, DefaultIdleTimeout),
		interval:  orDefault(cfg.SweepInterval, DefaultSweepInterval),
		maxRewind: orDefault(cfg.MaxClockRewind, DefaultMaxClockRewind),
		clock:     clock.Default(cfg.Clock),
		onEvict:   cfg.OnEvict,
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d == 0 {
		return def
	}

	return d
}

// LimitFor returns the bucket shape applied to key.
func (l *Limiter) LimitFor(key string) Limit {
	if o, ok := l.overrides[key]; ok {
		return o
	}

	return l.def
}

// Check takes one token for key at now.
func (l *Limiter) Check(key string, now time.Time) (Decision, error) {
	return l.store.Take(key, l.LimitFor(key), now, l.maxRewind)
}

// Allow takes one token for key at the current time.
func (l *Limiter) Allow(key string) (Decision, error) {
	return l.Check(key, l.clock.Now())
}

// Evict removes idle, fully refilled buckets as of now.
func (l *Limiter) Evict(now time.Time) int {
	return l.store.Evict(now, l.idle)
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	return l.store.Len()
}

// Run sweeps idle buckets every SweepInterval until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	l.store.Run(ctx, l.interval, l.idle, l.clock.Now, l.onEvict)
}
