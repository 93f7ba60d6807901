// Package scraper drives a download session over one search query.
//
// Run walks listing pages in increasing order starting from the stored
// resume cursor (or an explicit start page), filters posts by rating,
// hands each page to the page downloader and checkpoints the page once it
// is processed. The loop ends on:
//
//   - an explicit end page
//   - an empty listing
//   - N consecutive pages without a single download
//   - a permanent listing failure (that page is not checkpointed)
//   - cancellation of the context
//
// Whatever the reason, the session totals are then added to the stats
// store before Run returns.
//
// Usage:
//
//	summary, err := scraper.Run(ctx, scraper.Options{
//	    Tags:     "landscape",
//	    Workers:  5,
//	    Timeout:  10 * time.Second,
//	    Fetcher:  client,
//	    Storage:  store,
//	    Progress: checkpoint.NewStore(progressPath, log),
//	    Stats:    stats.NewStore(statsPath, log),
//	})
package scraper
