package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsba/emr/internal/config"
)

func testConfig(env string) *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              env,
		StoreBackend:     config.BackendMemory,
		JWTSigningKey:    "0123456789abcdef0123456789abcdef",
		JWTIssuer:        "hsba-emr-test",
		TokenTTL:         time.Hour,
		CORSOrigins:      []string{"http://localhost:3000"},
		RateLimitRPS:     1000,
		RateLimitBurst:   1000,
		RecordsPageSize:  20,
		PatientsPageSize: 10,
		AccountsPageSize: 10,
		MaxUploadSize:    "5M",
		ExportLockTTL:    time.Minute,
		SeedDemoData:     true,
	}
}

func newTestApp(t *testing.T, env string) *app {
	t.Helper()
	a, err := newApp(context.Background(), testConfig(env), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func do(a *app, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	a := newTestApp(t, "development")

	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := do(a, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"backend":"memory"`)
	}
	// No database health route on the memory backend.
	rec := do(a, http.MethodGet, "/api/v1/health/db", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteRedirectsToRecords(t *testing.T) {
	a := newTestApp(t, "development")

	rec := do(a, http.MethodGet, "/api/v1/does-not-exist", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/records", body["redirect"])
}

func TestDevelopmentSeedsDemoData(t *testing.T) {
	a := newTestApp(t, "development")

	rec := do(a, http.MethodGet, "/api/v1/records", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Total    int `json:"total"`
		PageSize int `json:"pageSize"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 20, page.PageSize)
}

func TestStandaloneLoginFlow(t *testing.T) {
	a := newTestApp(t, "production")

	rec := do(a, http.MethodGet, "/api/v1/patients", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(a, http.MethodPost, "/api/v1/auth/login", "", `{"username":"sinhvien","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(a, http.MethodPost, "/api/v1/auth/login", "", `{"username":"sinhvien","password":"sinhvien123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)

	rec = do(a, http.MethodGet, "/api/v1/patients", session.Token, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Students cannot manage accounts.
	rec = do(a, http.MethodGet, "/api/v1/accounts", session.Token, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreatePatientThenRecord(t *testing.T) {
	a := newTestApp(t, "development")

	rec := do(a, http.MethodPost, "/api/v1/patients", "", `{"fullName":"Đỗ Thị Hạnh","dob":"1988-02-14","gender":"Nữ"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Patient struct {
			ID string `json:"id"`
		} `json:"patient"`
		Next string `json:"next"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.True(t, strings.HasPrefix(created.Patient.ID, "BN"))
	assert.Equal(t, "/records/new/"+created.Patient.ID, created.Next)

	rec = do(a, http.MethodPost, "/api/v1/patients/"+created.Patient.ID+"/records?type=surgery", "", `{"department":"Ngoại thần kinh"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		PatientName string `json:"patientName"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "surgery", r.Type)
	assert.Equal(t, "Đỗ Thị Hạnh", r.PatientName)

	rec = do(a, http.MethodPost, "/api/v1/patients/BN404/records", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSigningKey(t *testing.T) {
	cfg := testConfig("development")
	cfg.JWTSigningKey = ""
	key, err := signingKey(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, key, 64)

	cfg.Env = "production"
	_, err = signingKey(cfg, zerolog.Nop())
	assert.Error(t, err)
}
