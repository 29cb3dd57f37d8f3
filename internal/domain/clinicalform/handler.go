package clinicalform

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsba/emr/internal/domain/record"
	"github.com/hsba/emr/internal/platform/auth"
	"github.com/hsba/emr/internal/platform/blobstore"
	"github.com/hsba/emr/internal/platform/pdfexport"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/records/:id/forms", auth.RequireRole(auth.RoleStudent, auth.RoleTeacher))
	for _, k := range Kinds() {
		g.POST("/"+k.Name, h.create(k))
	}
	g.PUT("/:docId", h.Regenerate)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, record.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, record.ErrDocumentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	case errors.Is(err, ErrInvalidForm), errors.Is(err, ErrUnknownKind), errors.Is(err, pdfexport.ErrSnapshotMissing):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, pdfexport.ErrExportInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, pdfexport.ErrRenderFailed):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, map[string]string{
			"error":  err.Error(),
			"notice": "Không thể tạo file PDF cho phiếu. Vui lòng thử lại.",
		})
	case errors.Is(err, blobstore.ErrFileTooLarge), errors.Is(err, pdfexport.ErrSnapshotTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// formInput reads the multipart "data" field and the optional "snapshot"
// file. The returned closer must be called once the snapshot is consumed.
func formInput(c echo.Context) ([]byte, io.Reader, func(), error) {
	data := []byte(c.FormValue("data"))
	fh, err := c.FormFile("snapshot")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return data, nil, func() {}, nil
		}
		return nil, nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return data, f, func() { f.Close() }, nil
}

func (h *Handler) create(kind Kind) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, snapshot, done, err := formInput(c)
		if err != nil {
			return err
		}
		defer done()
		doc, err := h.svc.Create(c.Request().Context(), c.Param("id"), kind, data, snapshot)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusCreated, doc)
	}
}

func (h *Handler) CreateXRay(c echo.Context) error {
	return h.create(XRay)(c)
}

func (h *Handler) CreateHematology(c echo.Context) error {
	return h.create(Hematology)(c)
}

func (h *Handler) Regenerate(c echo.Context) error {
	data, snapshot, done, err := formInput(c)
	if err != nil {
		return err
	}
	defer done()
	doc, err := h.svc.Regenerate(c.Request().Context(), c.Param("id"), c.Param("docId"), data, snapshot)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}
