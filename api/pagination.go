package api

import (
	"net/url"
	"strconv"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// PaginationMeta is embedded in paginated list responses.
type PaginationMeta struct {
	TotalCount int  `json:"total_count"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	HasMore    bool `json:"has_more"`
}

// pageRequest selects a page of a newest-first listing: Offset skips that
// many of the newest items.
type pageRequest struct {
	Limit  int
	Offset int
}

// parsePageRequest reads "limit" and "offset". Missing, malformed or
// non-positive values fall back to the defaults; limit is capped.
func parsePageRequest(q url.Values) pageRequest {
	p := pageRequest{Limit: defaultPageLimit}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		p.Limit = min(n, maxPageLimit)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		p.Offset = n
	}
	return p
}

// window maps the page onto total items stored oldest first. It returns the
// half-open index range [lo, hi) holding the page; the caller reverses it.
func (p pageRequest) window(total int) (lo, hi int, meta PaginationMeta) {
	hi = max(total-p.Offset, 0)
	lo = max(hi-p.Limit, 0)
	return lo, hi, PaginationMeta{
		TotalCount: total,
		Limit:      p.Limit,
		Offset:     p.Offset,
		HasMore:    lo > 0,
	}
}
