// Package booru is the HTTP client for Moebooru-style image boards such as
// konachan.net and konachan.com.
//
// Endpoints used:
//
//	GET <base>/post.json?tags=&page=&limit=   listing page (JSON array)
//	GET <base>/post.xml?tags=&limit=1         total count (root "count" attribute)
//	GET <file_url>                            file body
//
// Every call goes through a retry policy and the optional rate limiter, so
// callers see either a result or a permanent failure. Failures are
// *errors.Error values; a cancelled context always surfaces as
// ErrorTypeCanceled, never as a retryable network error.
package booru
