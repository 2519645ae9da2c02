// Package pagination provides pagination utilities.
package pagination

// Pagination holds pagination parameters.
type Pagination struct {
	Page    int
	PerPage int
}

// New creates a Pagination with sane bounds applied.
func New(page, perPage int) Pagination {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return Pagination{
		Page:    page,
		PerPage: perPage,
	}
}

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	return p.PerPage
}

// Result represents a paginated result set.
type Result[T any] struct {
	Data       []T   `json:"data"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int   `json:"total_pages"`
}

// NewResult creates a new paginated Result.
func NewResult[T any](data []T, total int64, p Pagination) Result[T] {
	if data == nil {
		data = make([]T, 0)
	}

	totalPages := int(total) / p.PerPage
	if int(total)%p.PerPage > 0 {
		totalPages++
	}

	return Result[T]{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PerPage:    p.PerPage,
		TotalPages: totalPages,
	}
}
