package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsba/emr/internal/platform/auth"
	"github.com/hsba/emr/internal/platform/inflight"
)

// SubmitGuard rejects a write while an identical write (same user, method
// and path) is still being handled. Reads pass through.
func SubmitGuard(guard inflight.Guard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			switch req.Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return next(c)
			}

			user := auth.UserIDFromContext(req.Context())
			if user == "" {
				user = c.RealIP()
			}
			release, err := guard.Acquire(req.Context(), "submit:"+user+":"+req.Method+":"+req.URL.Path)
			if errors.Is(err, inflight.ErrBusy) {
				return echo.NewHTTPError(http.StatusConflict, "request already in progress")
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "submit guard unavailable")
			}
			defer release()
			return next(c)
		}
	}
}
