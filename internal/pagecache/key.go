package pagecache

import (
	"strconv"
	"strings"
)

// DefaultQueryBase names the resource when the caller does not.
const DefaultQueryBase = "default"

const defaultSortKey = "default-sort"

// DeriveKey turns params and a query base into the cache key.
//
// Cursor-addressed params produce "{base}-cursor-{cursor}-{size}-{sort}", all
// others "{base}-page-{page}-{size}-{sort}". The two forms never alias, even
// when they name the same logical page.
func DeriveKey(p Params, queryBase string) string {
	if queryBase == "" {
		queryBase = DefaultQueryBase
	}

	var b strings.Builder
	b.Grow(len(queryBase) + len(p.Cursor) + len(p.SortField) + 32)
	b.WriteString(queryBase)
	if p.Cursor != "" {
		b.WriteString("-cursor-")
		b.WriteString(p.Cursor)
	} else {
		b.WriteString("-page-")
		b.WriteString(strconv.Itoa(p.Page))
	}
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(p.PageSize))
	b.WriteByte('-')
	b.WriteString(sortKey(p))
	return b.String()
}

func sortKey(p Params) string {
	if p.SortField == "" || p.SortOrder == "" {
		return defaultSortKey
	}
	return p.SortField + "-" + string(p.SortOrder)
}
