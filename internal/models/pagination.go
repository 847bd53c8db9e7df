package models

import "math"

// Page selects a 1-based page of a list query.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of rows to skip. It saturates at math.MaxInt
// instead of wrapping for very large page numbers.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	if p.Number-1 > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return (p.Number - 1) * p.Size
}

// Beyond reports whether the page starts past the last of total rows.
func (p Page) Beyond(total int64) bool {
	return p.Number > 1 && int64(p.Offset()) >= total
}

// PageInfo carries the totals of a paginated list response.
type PageInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// NewPageInfo computes total_pages as ceil(total/size), 0 when there are no rows.
func NewPageInfo(total int64, p Page) PageInfo {
	pages := 0
	if p.Size > 0 {
		pages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return PageInfo{Total: total, Page: p.Number, PageSize: p.Size, TotalPages: pages}
}
