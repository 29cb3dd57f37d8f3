package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext_Defaults(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c, 20)

	if p.Size != 20 {
		t.Errorf("expected default size 20, got %d", p.Size)
	}
	if p.Page != 1 {
		t.Errorf("expected page 1, got %d", p.Page)
	}
}

func TestFromContext_PerViewDefault(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if p := FromContext(c, 10); p.Size != 10 {
		t.Errorf("expected size 10, got %d", p.Size)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page=3&page_size=5", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	p := FromContext(c, 20)

	if p.Page != 3 {
		t.Errorf("expected page 3, got %d", p.Page)
	}
	if p.Size != 5 {
		t.Errorf("expected size 5, got %d", p.Size)
	}
}

func TestFromContext_MaxSize(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?page_size=1000&page=-4", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	p := FromContext(c, 20)
	if p.Size != MaxPageSize {
		t.Errorf("expected size capped at %d, got %d", MaxPageSize, p.Size)
	}
	if p.Page != 1 {
		t.Errorf("expected negative page to become 1, got %d", p.Page)
	}
}

func TestSlice(t *testing.T) {
	items := make([]int, 45)
	for i := range items {
		items[i] = i
	}

	page, p := Slice(items, Params{Page: 3, Size: 20})
	if len(page) != 5 || page[0] != 40 {
		t.Errorf("unexpected last page: %v", page)
	}
	if p.TotalPages(len(items)) != 3 {
		t.Errorf("expected 3 pages, got %d", p.TotalPages(len(items)))
	}

	page, p = Slice(items, Params{Page: 9, Size: 20})
	if p.Page != 3 || len(page) != 5 {
		t.Errorf("expected clamp to page 3, got page %d with %d items", p.Page, len(page))
	}
}

func TestSlice_Empty(t *testing.T) {
	page, p := Slice([]string{}, Params{Page: 2, Size: 10})
	if len(page) != 0 {
		t.Errorf("expected empty page, got %v", page)
	}
	if p.Page != 1 {
		t.Errorf("expected page 1, got %d", p.Page)
	}
}

func TestReset(t *testing.T) {
	p := Params{Page: 4, Size: 20}.Reset()
	if p.Page != 1 || p.Size != 20 {
		t.Errorf("unexpected reset params: %+v", p)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 21, Params{Page: 2, Size: 20})
	if r.TotalPages != 2 || r.Page != 2 || r.PageSize != 20 || r.Total != 21 {
		t.Errorf("unexpected response: %+v", r)
	}
}
