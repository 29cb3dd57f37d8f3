package patient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/xuri/excelize/v2"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc, 2), echo.New()
}

func seedPatients(t *testing.T, h *Handler, names ...string) []*Patient {
	t.Helper()
	var out []*Patient
	for _, n := range names {
		p, err := h.svc.Create(context.Background(), &Patient{FullName: n})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	body := `{"fullName":"Nguyễn Văn An","dob":"1990-01-01","province":"Hà Nội"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var resp CreateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Patient == nil || resp.Next != "/records/new/"+resp.Patient.ID {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	if code := statusOf(h.CreatePatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("BN404")

	if code := statusOf(h.GetPatient(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_ListPatients_Paginates(t *testing.T) {
	h, e := newTestHandler()
	seedPatients(t, h, "Nguyễn A", "Nguyễn B", "Trần C")

	req := httptest.NewRequest(http.MethodGet, "/?page=9", nil)
	rec := httptest.NewRecorder()
	if err := h.ListPatients(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Data       []Patient `json:"data"`
		Total      int       `json:"total"`
		Page       int       `json:"page"`
		TotalPages int       `json:"totalPages"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 3 || resp.TotalPages != 2 || resp.Page != 2 || len(resp.Data) != 1 {
		t.Errorf("unexpected page %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/?q=nguy%E1%BB%85n", nil)
	rec = httptest.NewRecorder()
	h.ListPatients(e.NewContext(req, rec))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected 2 matches, got %d", resp.Total)
	}
}

func TestHandler_PatchPatient(t *testing.T) {
	h, e := newTestHandler()
	p := seedPatients(t, h, "Lý Văn Minh")[0]

	body := `{"actions":[{"op":"set","path":"dob","value":"2000-01-01"},{"op":"set","path":"ward","value":"Phường 5"}]}`
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.PatchPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Patient
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Age != 25 || got.Address != "Phường 5" {
		t.Errorf("unexpected patient %+v", got)
	}
}

func TestHandler_PatchPatient_UnsupportedOp(t *testing.T) {
	h, e := newTestHandler()
	p := seedPatients(t, h, "Lý Văn Minh")[0]

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"actions":[{"op":"add_transfer"}]}`))
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if code := statusOf(h.PatchPatient(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_DeletePatient(t *testing.T) {
	h, e := newTestHandler()
	p := seedPatients(t, h, "Mai Thị Ngọc")[0]

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID)

	if err := h.DeletePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_ExportPatients(t *testing.T) {
	h, e := newTestHandler()
	seedPatients(t, h, "Nguyễn Văn An", "Trần Thị Bình")

	rec := httptest.NewRecorder()
	if err := h.ExportPatients(e.NewContext(httptest.NewRequest(http.MethodGet, "/?q=an", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Header().Get(echo.HeaderContentDisposition), ".xlsx") {
		t.Errorf("unexpected disposition %q", rec.Header().Get(echo.HeaderContentDisposition))
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("BenhNhan")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 2 || rows[1][1] != "Nguyễn Văn An" {
		t.Errorf("unexpected rows %v", rows)
	}
}
