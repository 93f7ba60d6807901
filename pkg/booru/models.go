package booru

import "strings"

// Rating is the content rating of a post as sent on the wire
type Rating string

const (
	RatingSafe         Rating = "s"
	RatingQuestionable Rating = "q"
	RatingExplicit     Rating = "e"
)

// String returns the long name of the rating
func (r Rating) String() string {
	switch r {
	case RatingSafe:
		return "safe"
	case RatingQuestionable:
		return "questionable"
	case RatingExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Post is the metadata of one image returned by a listing
type Post struct {
	ID       int64  `json:"id"`
	Tags     string `json:"tags"`
	FileURL  string `json:"file_url"`
	FileSize int64  `json:"file_size"`
	MD5      string `json:"md5"`
	Rating   Rating `json:"rating"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// FilterSafe keeps only safe-rated posts and reports how many were dropped
func FilterSafe(posts []Post) ([]Post, int) {
	kept := make([]Post, 0, len(posts))
	for _, p := range posts {
		if p.Rating == RatingSafe {
			kept = append(kept, p)
		}
	}
	return kept, len(posts) - len(kept)
}

// absoluteURL resolves the protocol-relative and root-relative URLs some
// boards return against base.
func absoluteURL(raw, base string) string {
	switch {
	case strings.HasPrefix(raw, "//"):
		scheme := "https"
		if i := strings.Index(base, "://"); i > 0 {
			scheme = base[:i]
		}
		return scheme + ":" + raw
	case strings.HasPrefix(raw, "/"):
		return strings.TrimRight(base, "/") + raw
	default:
		return raw
	}
}
