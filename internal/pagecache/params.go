package pagecache

import "time"

// SortOrder is the direction of a sorted query.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Valid reports whether o is empty or one of the known orders.
func (o SortOrder) Valid() bool {
	return o == "" || o == SortAsc || o == SortDesc
}

// Params addresses one page of a paginated query. Zero values mean "not given".
// The cache never validates or defaults these fields.
type Params struct {
	Page      int       `json:"page,omitempty" yaml:"page,omitempty"`
	PageSize  int       `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Cursor    string    `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	SortField string    `json:"sort_field,omitempty" yaml:"sort_field,omitempty"`
	SortOrder SortOrder `json:"sort_order,omitempty" yaml:"sort_order,omitempty"`
}

// Metadata is the pagination envelope returned alongside a page of items.
// Empty cursors mean the cursor is absent.
type Metadata struct {
	Page        int    `json:"page"`
	PageSize    int    `json:"page_size"`
	TotalCount  int    `json:"total_count"`
	TotalPages  int    `json:"total_pages"`
	HasNext     bool   `json:"has_next"`
	HasPrevious bool   `json:"has_previous"`
	NextCursor  string `json:"next_cursor,omitempty"`
	PrevCursor  string `json:"prev_cursor,omitempty"`
}

// Result is what a fetch hands back to the cache.
type Result[T any] struct {
	Items      []T      `json:"items"`
	Pagination Metadata `json:"pagination"`
}

// Entry is one cached page, or a loading placeholder.
type Entry[T any] struct {
	Data       []T       `json:"data"`
	Pagination Metadata  `json:"pagination"`
	Timestamp  time.Time `json:"timestamp"`
	Stale      bool      `json:"stale"`
	Loading    bool      `json:"loading"`
	QueryKey   string    `json:"query_key"`
}

// clone returns a copy whose Data slice is independent of the stored one.
func (e *Entry[T]) clone() Entry[T] {
	out := *e
	if e.Data != nil {
		out.Data = make([]T, len(e.Data))
		copy(out.Data, e.Data)
	}
	return out
}
