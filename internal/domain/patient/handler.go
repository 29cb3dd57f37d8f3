package patient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hsba/emr/internal/platform/auth"
	"github.com/hsba/emr/internal/platform/formstate"
	"github.com/hsba/emr/internal/platform/xlsx"
	"github.com/hsba/emr/pkg/pagination"
)

type Handler struct {
	svc      *Service
	pageSize int
}

func NewHandler(svc *Service, pageSize int) *Handler {
	return &Handler{svc: svc, pageSize: pageSize}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients", auth.RequireRole(auth.RoleStudent, auth.RoleTeacher))
	g.GET("", h.ListPatients)
	g.GET("/export", h.ExportPatients)
	g.GET("/:id", h.GetPatient)
	g.POST("", h.CreatePatient)
	g.PUT("/:id", h.UpdatePatient)
	g.PATCH("/:id", h.PatchPatient)
	g.DELETE("/:id", h.DeletePatient, auth.RequireRole(auth.RoleTeacher))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrInvalidPatient), errors.Is(err, formstate.ErrInvalidPath),
		errors.Is(err, formstate.ErrUnknownField), errors.Is(err, formstate.ErrIndexOutOfRange),
		errors.Is(err, formstate.ErrTypeMismatch):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) ListPatients(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	page, pg := pagination.Slice(items, pagination.FromContext(c, h.pageSize))
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg))
}

var exportColumns = []xlsx.Column{
	{Header: "Mã BN", Width: 18},
	{Header: "Họ và tên", Width: 28},
	{Header: "Ngày sinh", Width: 12},
	{Header: "Tuổi", Width: 6},
	{Header: "Giới tính", Width: 10},
	{Header: "CCCD", Width: 16},
	{Header: "Địa chỉ", Width: 45},
	{Header: "Số BHYT", Width: 18},
	{Header: "Điện thoại", Width: 14},
}

func (h *Handler) ExportPatients(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return httpError(err)
	}
	rows := make([][]any, 0, len(items))
	for _, p := range items {
		rows = append(rows, []any{p.ID, p.FullName, p.DOB, p.Age, p.Gender, p.CCCD, p.Address, p.InsuranceNumber, p.Phone})
	}
	var buf bytes.Buffer
	if err := xlsx.Write(&buf, "BenhNhan", exportColumns, rows); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("DanhSachBenhNhan_%s.xlsx", time.Now().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsx.ContentType, buf.Bytes())
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreateResponse carries the new patient and where the client goes next.
type CreateResponse struct {
	Patient *Patient `json:"patient"`
	Next    string   `json:"next"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, CreateResponse{Patient: created, Next: "/records/new/" + created.ID})
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Replace(c.Request().Context(), c.Param("id"), &p)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

type patchAction struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

type patchRequest struct {
	Actions []patchAction `json:"actions"`
}

// DecodeActions turns a PATCH body into reducer actions. Only "set" is
// meaningful for patients.
func DecodeActions(body []byte) ([]SetField, error) {
	var req patchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPatient, err)
	}
	out := make([]SetField, 0, len(req.Actions))
	for i, a := range req.Actions {
		if a.Op != "set" {
			return nil, fmt.Errorf("%w: action %d: unsupported op %q", ErrInvalidPatient, i, a.Op)
		}
		path, err := formstate.ParsePath(a.Path)
		if err != nil {
			return nil, err
		}
		var value any
		if len(a.Value) > 0 {
			if err := json.Unmarshal(a.Value, &value); err != nil {
				return nil, fmt.Errorf("%w: action %d: %v", ErrInvalidPatient, i, err)
			}
		}
		out = append(out, SetField{Path: path, Value: value})
	}
	return out, nil
}

func (h *Handler) PatchPatient(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actions, err := DecodeActions(raw)
	if err != nil {
		return httpError(err)
	}
	updated, err := h.svc.Apply(c.Request().Context(), c.Param("id"), actions)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
