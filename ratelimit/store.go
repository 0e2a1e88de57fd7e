package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 64

type bucket struct {
	tokens   *rate.Limiter
	limit    Limit
	lastSeen time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Store owns every bucket. It is safe for concurrent use.
type Store struct {
	shards []*shard
}

// NewStore returns a Store with n shards. n must be positive.
func NewStore(n int) (*Store, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: shard count must be positive, got %d", ErrInvalidConfig, n)
	}

	s := &Store{shards: make([]*shard, n)}
	for i := range s.shards {
		s.shards[i] = &shard{buckets: map[string]*bucket{}}
	}

	return s, nil
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[fnv64a(key)%uint64(len(s.shards))]
}

// Take refills the bucket for key as of now and takes one token if one is
// available. A missing bucket is created full. now earlier than the
// bucket's last access by at most maxRewind is treated as the last access
// time; further back returns ErrClockRewind.
func (s *Store) Take(key string, limit Limit, now time.Time, maxRewind time.Duration) (Decision, error) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		b = &bucket{
			tokens:   rate.NewLimiter(rate.Limit(limit.RefillRate), limit.Capacity),
			limit:    limit,
			lastSeen: now,
		}
		sh.buckets[key] = b
	}

	if now.Before(b.lastSeen) {
		if b.lastSeen.Sub(now) > maxRewind {
			return Decision{}, fmt.Errorf("%w: %s behind last access for key %q", ErrClockRewind, b.lastSeen.Sub(now), key)
		}

		now = b.lastSeen
	}

	if b.limit != limit {
		b.tokens.SetLimitAt(now, rate.Limit(limit.RefillRate))
		b.tokens.SetBurstAt(now, limit.Capacity)
		b.limit = limit
	}

	b.lastSeen = now

	d := Decision{Limit: limit}

	if b.tokens.AllowN(now, 1) {
		d.Allowed = true
		d.Remaining = wholeTokens(b.tokens.TokensAt(now))

		return d, nil
	}

	available := b.tokens.TokensAt(now)
	d.RetryAfter = durationFor(1-available, limit.RefillRate)

	return d, nil
}

// Tokens returns the fractional tokens held by key at now without taking
// any. A key without a bucket reports false.
func (s *Store) Tokens(key string, now time.Time) (float64, bool) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		return 0, false
	}

	return b.tokens.TokensAt(now), true
}

// Len returns the number of live buckets.
func (s *Store) Len() int {
	n := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}

	return n
}

// Evict removes buckets not accessed for longer than idle that have also
// refilled to capacity, so a later first access gets exactly the bucket it
// would have had. Shards are locked one at a time. It returns the number
// of buckets removed.
func (s *Store) Evict(now time.Time, idle time.Duration) int {
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()

		for key, b := range sh.buckets {
			if now.Sub(b.lastSeen) <= idle {
				continue
			}

			if b.tokens.TokensAt(now) < float64(b.limit.Capacity) {
				continue
			}

			delete(sh.buckets, key)
			removed++
		}

		sh.mu.Unlock()
	}

	return removed
}

// Run calls Evict every interval until ctx is done. now supplies the
// eviction time; onEvict, when non-nil, receives each non-zero count.
func (s *Store) Run(ctx context.Context, interval, idle time.Duration, now func() time.Time, onEvict func(int)) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.C:
			if n := s.Evict(now(), idle); n > 0 && onEvict != nil {
				onEvict(n)
			}
		}
	}
}

func wholeTokens(f float64) int {
	if f <= 0 {
		return 0
	}

	return int(math.Floor(f))
}

// fnv64a is an allocation-free FNV-1a hash for shard selection.
func fnv64a(key string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	h := uint64(offset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= prime64
	}

	return h
}
