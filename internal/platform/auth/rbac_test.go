package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithRoles(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole_Allowed(t *testing.T) {
	c := contextWithRoles(RoleTeacher)
	if err := RequireRole(RoleStudent, RoleTeacher)(okHandler)(c); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	c := contextWithRoles(RoleStudent)
	err := RequireRole(RoleAdmin)(okHandler)(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %v", err)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	c := contextWithRoles(RoleAdmin)
	if err := RequireRole(RoleTeacher)(okHandler)(c); err != nil {
		t.Errorf("admin should pass any role check, got %v", err)
	}
}

func TestRequireRole_NoRoles(t *testing.T) {
	c := contextWithRoles()
	if err := RequireRole(RoleStudent)(okHandler)(c); err == nil {
		t.Error("expected error with no roles")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleStudent, RoleTeacher, RoleAdmin} {
		if !ValidRole(r) {
			t.Errorf("expected %s to be valid", r)
		}
	}
	for _, r := range []string{"", "physician", "Admin"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}
