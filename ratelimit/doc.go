// Package ratelimit throttles requests per key with token buckets.
//
// The party server keys buckets by player ID for in-match requests
// (a phone's QR scanner can fire the same scan many times a second) and by
// client address for match creation. Buckets are created full on first use
// and refill continuously at Burst tokens per Window.
//
//	limiter := ratelimit.New(ratelimit.Config{Burst: 5, Window: time.Second})
//	if !limiter.Allow(playerID) {
//	    return errors.RateLimited(playerID)
//	}
package ratelimit
