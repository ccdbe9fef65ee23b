// Package query holds the pagination and search policy shared by both repositories
// and by every store implementation.
package query

import "math"

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Pagination is a 1-indexed page request.
type Pagination struct {
	Page  int
	Limit int
}

// Page returns a normalized pagination for page and limit.
func Page(page, limit int) Pagination {
	return Pagination{Page: page, Limit: limit}.Normalize()
}

// Normalize clamps out of range values: page < 1 becomes 1 and a limit
// outside [1, MaxLimit] becomes DefaultLimit.
func (p Pagination) Normalize() Pagination {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 || p.Limit > MaxLimit {
		p.Limit = DefaultLimit
	}
	return p
}

// Offset is the number of matching documents skipped before this page. It saturates
// at math.MaxInt instead of overflowing for very large pages.
func (p Pagination) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// TotalPages returns ceil(total/limit).
func (p Pagination) TotalPages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Window returns the [lo, hi) bounds of this page inside a slice of length n.
func (p Pagination) Window(n int) (lo, hi int) {
	n = max(n, 0)
	lo = min(p.Offset(), n)
	hi = lo + min(max(p.Limit, 0), n-lo)
	return lo, hi
}
