// Package ratelimit paces outgoing booru requests.
//
// HostLimiter keeps one golang.org/x/time/rate token bucket per host:
//
//	limiter := ratelimit.NewHostLimiter(config.RateLimitConfig{RequestsPerSecond: 2, Burst: 4})
//	if err := limiter.Wait(ctx, "https://konachan.net/post.json"); err != nil {
//	    return err // ctx ended while waiting
//	}
package ratelimit
