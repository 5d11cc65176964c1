package shared

import (
	"net/http"
	"strconv"
)

// Pagination carries the limit/offset pair the list endpoints feed into
// their SQL queries.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination reads limit and offset from the query string. Junk and
// out-of-range values fall back to the defaults, and limit is clamped to
// maxLimit so a single request cannot drag a whole KPI table over the wire.
func ParsePagination(r *http.Request, defaultLimit, maxLimit int) Pagination {
	page := Pagination{Limit: defaultLimit}
	if v, ok := queryInt(r, "limit"); ok && v > 0 {
		page.Limit = v
	}
	if v, ok := queryInt(r, "offset"); ok && v >= 0 {
		page.Offset = v
	}
	if maxLimit > 0 && page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page
}

func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
