package pagination

import (
	"net/http"
	"strconv"
)

// Limits for the "first" page size parameter.
const (
	DefaultFirst = 24
	MaxFirst     = 100
)

// Params holds cursor pagination parameters extracted from query strings.
// After is an opaque cursor handed out by the upstream catalog.
type Params struct {
	First int    `json:"first"`
	After string `json:"after,omitempty"`
}

// DefaultParams returns sensible pagination defaults.
func DefaultParams() Params {
	return Params{First: DefaultFirst}
}

// FromRequest extracts pagination parameters from an HTTP request.
// Out-of-range values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	p := DefaultParams()
	q := r.URL.Query()

	if first := q.Get("first"); first != "" {
		if v, err := strconv.Atoi(first); err == nil && v > 0 && v <= MaxFirst {
			p.First = v
		}
	}
	p.After = q.Get("after")

	return p
}

// PageInfo mirrors the connection page info of a GraphQL list.
type PageInfo struct {
	HasNextPage bool   `json:"has_next_page"`
	EndCursor   string `json:"end_cursor,omitempty"`
}

// Result wraps a cursor-paginated response.
type Result[T any] struct {
	Items    []T      `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

// NewResult creates a paginated result. A nil slice is rendered as an empty list.
func NewResult[T any](items []T, info PageInfo) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, PageInfo: info}
}
