// Package ratelimit implements per-key token bucket admission control.
//
// Each key owns a bucket of Capacity tokens refilled continuously at
// RefillRate tokens per second. A check refills lazily, then takes one
// token if at least one is available; otherwise it reports how long until
// one will be.
//
// Buckets live in a sharded Store. The shard lock covers lookup, refill
// and decrement, so concurrent checks against one key are linearizable
// while keys in different shards never contend. Idle buckets are evicted
// by Evict or by the Run sweeper, the only goroutine this package starts.
//
//	limiter, err := ratelimit.New(ratelimit.Config{
//	    Default: ratelimit.Limit{Capacity: 5, RefillRate: 1},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	go limiter.Run(ctx)
//
//	d, err := limiter.Allow(clientIP)
//	if err == nil && !d.Allowed {
//	    // respond 429 with Retry-After: d.RetryAfter
//	}
package ratelimit
