package cityinfo

const (
	DefaultPageSize = 10
	MaxPageSize     = 20
)

// PaginationMetadata describes one page of a collection query. It is derived per
// query and never stored.
type PaginationMetadata struct {
	TotalItemCount int `json:"totalItemCount"`
	PageSize       int `json:"pageSize"`
	CurrentPage    int `json:"currentPage"`
	TotalPageCount int `json:"totalPageCount"`
}

// NewPaginationMetadata computes the page count as ceil(total / pageSize).
func NewPaginationMetadata(total, pageSize, currentPage int) PaginationMetadata {
	if pageSize < 1 {
		pageSize = 1
	}
	return PaginationMetadata{
		TotalItemCount: total,
		PageSize:       pageSize,
		CurrentPage:    currentPage,
		TotalPageCount: (total + pageSize - 1) / pageSize,
	}
}

// CityQuery filters and pages the city collection. Name is a case-insensitive
// substring of the city name; SearchQuery a case-insensitive substring of name or
// description. Both apply before paging.
type CityQuery struct {
	Name        string
	SearchQuery string
	PageNumber  int
	PageSize    int
}

// Clamp returns q with PageSize limited to maxPageSize and non-positive values
// replaced by their defaults.
func (q CityQuery) Clamp(maxPageSize int) CityQuery {
	if maxPageSize < 1 {
		maxPageSize = MaxPageSize
	}
	if q.PageNumber < 1 {
		q.PageNumber = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

// Offset is the number of items skipped before the current page.
func (q CityQuery) Offset() int {
	return (q.PageNumber - 1) * q.PageSize
}
