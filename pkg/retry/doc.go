// Package retry provides exponential backoff and retry logic for the booru
// fetcher.
//
// A Config is an explicit policy object: attempt cap, backoff schedule and
// retry predicate. The fetcher keeps two of them, one for page listings and
// one for counts and file content.
//
//	cfg := retry.FromPolicy(appConfig.Retry.Listing, log)
//	posts, err := retry.DoWithResult(func() ([]booru.Post, error) {
//		return fetchOnce(ctx)
//	}, cfg.WithContext(ctx))
//
// Only typed transient errors (network, rate limit, server) are retried.
// Budget reports the worst-case time a single operation can take, which the
// page downloader uses to size its stall deadline.
package retry
