package domain

// ListParams defines standard limit/offset paging inputs for list operations.
type ListParams struct {
	Limit  int
	Offset int
}

// Normalize clamps paging inputs to sane bounds.
func (p ListParams) Normalize(defaultLimit, maxLimit int) ListParams {
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Page wraps a single page of list results.
type Page[T any] struct {
	Items  []T
	Total  int64
	Limit  int
	Offset int
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// Sort pairs a field name with a direction for list queries.
type Sort struct {
	Field string
	Order SortOrder
}

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// IsZero reports whether neither bound is set.
func (r RangeQuery[T]) IsZero() bool {
	return r.From == nil && r.To == nil
}
