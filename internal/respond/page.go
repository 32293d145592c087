package respond

import (
	"net/http"
	"strconv"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page parses the limit and offset query parameters.
func Page(r *http.Request) (limit, offset int, err error) {
	limit = defaultPageSize
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return 0, 0, domain.Invalid("limit", "must be a positive integer")
		}
		limit = min(limit, maxPageSize)
	}

	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, domain.Invalid("offset", "must be a non-negative integer")
		}
	}

	return limit, offset, nil
}
