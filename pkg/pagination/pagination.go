package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// MaxPageSize caps client supplied page_size values.
const MaxPageSize = 100

// Params holds page-number pagination extracted from a request. Page is
// 1-based. Each list view owns its default Size.
type Params struct {
	Page int
	Size int
}

// FromContext extracts pagination parameters from the echo context, falling
// back to defaultSize when page_size is absent or invalid.
func FromContext(c echo.Context, defaultSize int) Params {
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if size <= 0 {
		size = defaultSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}

	return Params{Page: page, Size: size}
}

// TotalPages returns the number of pages needed for total items. An empty
// result still has one (empty) page.
func (p Params) TotalPages(total int) int {
	if total <= 0 || p.Size <= 0 {
		return 1
	}
	return (total + p.Size - 1) / p.Size
}

// Clamp pulls Page back into [1, TotalPages(total)].
func (p Params) Clamp(total int) Params {
	last := p.TotalPages(total)
	if p.Page > last {
		p.Page = last
	}
	if p.Page < 1 {
		p.Page = 1
	}
	return p
}

// Offset returns the index of the first item on the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Size
}

// Reset returns the params moved back to the first page. Live search
// calls this whenever the view, filter or query changes.
func (p Params) Reset() Params {
	p.Page = 1
	return p
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"pageSize"`
	TotalPages int         `json:"totalPages"`
}

func NewResponse(data interface{}, total int, p Params) *Response {
	return &Response{
		Data:       data,
		Total:      total,
		Page:       p.Page,
		PageSize:   p.Size,
		TotalPages: p.TotalPages(total),
	}
}

// Slice returns the page of items selected by p (after clamping) together
// with the clamped params.
func Slice[T any](items []T, p Params) ([]T, Params) {
	p = p.Clamp(len(items))
	start := p.Offset()
	if start >= len(items) {
		return []T{}, p
	}
	end := start + p.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], p
}
