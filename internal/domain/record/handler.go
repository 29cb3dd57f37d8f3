package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hsba/emr/internal/platform/auth"
	"github.com/hsba/emr/internal/platform/blobstore"
	"github.com/hsba/emr/internal/platform/formstate"
	"github.com/hsba/emr/internal/platform/pdfexport"
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
	staff := auth.RequireRole(auth.RoleStudent, auth.RoleTeacher)

	g := api.Group("/records", staff)
	g.GET("", h.ListRecords)
	g.GET("/export", h.ExportRecords)
	g.GET("/:id", h.GetRecord)
	g.GET("/:id/edit", h.EditRecord)
	g.PUT("/:id", h.UpdateRecord)
	g.PATCH("/:id", h.PatchRecord)
	g.DELETE("/:id", h.DeleteRecord, auth.RequireRole(auth.RoleTeacher))
	g.POST("/:id/pdf", h.ExportPDF)

	g.GET("/:id/documents", h.ListDocuments)
	g.POST("/:id/documents", h.UploadDocument)
	g.GET("/:id/documents/:docId/file", h.DownloadDocument)
	g.PATCH("/:id/documents/:docId", h.PatchDocument)
	g.DELETE("/:id/documents/:docId", h.DeleteDocument)

	p := api.Group("/patients", staff)
	p.POST("/:id/records", h.CreateRecord)
	p.GET("/:id/records", h.ListPatientRecords)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient not found")
	case errors.Is(err, ErrDocumentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, ErrInvalidRecord), errors.Is(err, formstate.ErrInvalidPath),
		errors.Is(err, formstate.ErrUnknownField), errors.Is(err, formstate.ErrIndexOutOfRange),
		errors.Is(err, formstate.ErrTypeMismatch), errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge), errors.Is(err, pdfexport.ErrSnapshotTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, pdfexport.ErrSnapshotMissing):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pdfexport.ErrExportInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, pdfexport.ErrRenderFailed):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]string{
			"error":  err.Error(),
			"notice": "Không thể tạo file PDF. Vui lòng thử lại.",
		})
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// filterParam reads the category filter; "all" when absent.
func filterParam(c echo.Context) string {
	if f := c.QueryParam("filter"); f != "" {
		return f
	}
	return FilterAll
}

func (h *Handler) ListRecords(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("q"), filterParam(c))
	if err != nil {
		return httpError(err)
	}
	page, pg := pagination.Slice(items, pagination.FromContext(c, h.pageSize))
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg))
}

func (h *Handler) ListPatientRecords(c echo.Context) error {
	items, err := h.svc.ListByPatient(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	page, pg := pagination.Slice(items, pagination.FromContext(c, h.pageSize))
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg))
}

var exportColumns = []xlsx.Column{
	{Header: "Mã HSBA", Width: 20},
	{Header: "Mã BN", Width: 18},
	{Header: "Họ và tên", Width: 28},
	{Header: "Tuổi", Width: 6},
	{Header: "Giới tính", Width: 10},
	{Header: "Khoa", Width: 24},
	{Header: "Loại", Width: 10},
	{Header: "Ngày vào viện", Width: 14},
	{Header: "Ngày ra viện", Width: 14},
}

func (h *Handler) ExportRecords(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("q"), filterParam(c))
	if err != nil {
		return httpError(err)
	}
	rows := make([][]any, 0, len(items))
	for _, r := range items {
		rows = append(rows, []any{r.ID, r.PatientID, r.PatientName, r.Age, r.Gender, r.Department, r.Type, r.AdmissionDate, r.DischargeDate})
	}
	var buf bytes.Buffer
	if err := xlsx.Write(&buf, "HoSoBenhAn", exportColumns, rows); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := fmt.Sprintf("DanhSachHoSo_%s.xlsx", time.Now().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsx.ContentType, buf.Bytes())
}

func (h *Handler) GetRecord(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) EditRecord(c echo.Context) error {
	r, err := h.svc.GetForEdit(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) CreateRecord(c echo.Context) error {
	var draft *Record
	if c.Request().ContentLength != 0 {
		draft = &Record{}
		if err := c.Bind(draft); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	r, err := h.svc.Create(c.Request().Context(), c.Param("id"), c.QueryParam("type"), draft)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	var r Record
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Replace(c.Request().Context(), c.Param("id"), &r)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) PatchRecord(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	actions, err := DecodeActions(body)
	if err != nil {
		return httpError(err)
	}
	updated, err := h.svc.Apply(c.Request().Context(), c.Param("id"), actions)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteRecord(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// formFile opens the named multipart file, or returns nil when absent.
func formFile(c echo.Context, field string) (multipart.File, *multipart.FileHeader, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil, nil
		}
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return f, fh, nil
}

func (h *Handler) ExportPDF(c echo.Context) error {
	f, _, err := formFile(c, "snapshot")
	if err != nil {
		return err
	}
	var snapshot io.Reader
	if f != nil {
		defer f.Close()
		snapshot = f
	}
	res, name, err := h.svc.ExportPDF(c.Request().Context(), c.Param("id"), snapshot)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, "application/pdf", res.PDF)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	r, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r.Documents)
}

func (h *Handler) UploadDocument(c echo.Context) error {
	f, fh, err := formFile(c, "file")
	if err != nil {
		return err
	}
	if f == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	defer f.Close()

	content, contentType, err := sniff(f, fh.Header.Get(echo.HeaderContentType))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.UploadDocument(c.Request().Context(), c.Param("id"), Upload{
		Name:        c.FormValue("name"),
		Type:        c.FormValue("type"),
		Date:        c.FormValue("date"),
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

// sniff settles the content type of an upload, detecting it from the
// first bytes when the client did not send a specific one.
func sniff(r io.Reader, declared string) (io.Reader, string, error) {
	if declared != "" && declared != "application/octet-stream" {
		return r, declared, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", err
	}
	head = head[:n]
	return io.MultiReader(bytes.NewReader(head), r), http.DetectContentType(head), nil
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	doc, err := h.svc.GetDocument(c.Request().Context(), c.Param("id"), c.Param("docId"))
	if err != nil {
		return httpError(err)
	}
	return blobstore.Serve(c, h.svc.Blobs(), doc.BlobID, doc.FileName)
}

func (h *Handler) PatchDocument(c echo.Context) error {
	var patch map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.PatchDocument(c.Request().Context(), c.Param("id"), c.Param("docId"), patch)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	if err := h.svc.DeleteDocument(c.Request().Context(), c.Param("id"), c.Param("docId")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
