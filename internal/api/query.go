package api

import (
	"fmt"
	"net/url"
	"strconv"
)

// Eq renders a PostgREST equality predicate value.
func Eq(value any) string {
	return fmt.Sprintf("eq.%v", value)
}

// Order renders a PostgREST order clause for a single column.
func Order(column string, desc bool) string {
	if desc {
		return column + ".desc"
	}
	return column + ".asc"
}

// Page sets limit and offset on query.
func Page(query url.Values, limit, offset int) url.Values {
	if query == nil {
		query = url.Values{}
	}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("offset", strconv.Itoa(offset))
	return query
}

// ByID is the filter used to address a single row.
func ByID(id int64) url.Values {
	return url.Values{"id": {Eq(id)}}
}
