package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsba/emr/internal/platform/auth"
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
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)

	g := api.Group("/accounts", auth.RequireRole(auth.RoleAdmin))
	g.GET("", h.ListAccounts)
	g.POST("", h.CreateAccount)
	g.PUT("/:username", h.UpdateAccount)
	g.DELETE("/:username", h.DeleteAccount)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "account not found")
	case errors.Is(err, ErrInvalidAccount):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrExists), errors.Is(err, ErrSelfDelete):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAccountInactive):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Username == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}
	session, err := h.svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, session)
}

// Me describes the caller. The development identity has no stored account
// and is answered from the request context alone.
func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	username := auth.UserIDFromContext(ctx)
	if username == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not signed in")
	}
	u, err := h.svc.Get(ctx, username)
	if errors.Is(err, ErrNotFound) {
		roles := auth.RolesFromContext(ctx)
		role := ""
		if len(roles) > 0 {
			role = roles[0]
		}
		return c.JSON(http.StatusOK, &User{Username: username, Name: auth.NameFromContext(ctx), Role: role, Status: StatusActive})
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListAccounts(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context(), c.QueryParam("q"), c.QueryParam("role"))
	if err != nil {
		return httpError(err)
	}
	page, pg := pagination.Slice(items, pagination.FromContext(c, h.pageSize))
	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg))
}

func (h *Handler) CreateAccount(c echo.Context) error {
	var u User
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(c.Request().Context(), &u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateAccount(c echo.Context) error {
	var u User
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Request().Context(), c.Param("username"), &u)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	actor := auth.UserIDFromContext(c.Request().Context())
	if err := h.svc.Delete(c.Request().Context(), actor, c.Param("username")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
