package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/patient-service/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	RequestID()(handler)(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	long := strings.Repeat("x", maxRequestIDLen+1)
	req.Header.Set(RequestIDHeader, long)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	RequestID()(func(c echo.Context) error { return nil })(c)

	if got := rec.Header().Get(RequestIDHeader); got == long || got == "" {
		t.Errorf("expected a fresh request id, got %q", got)
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), "user-1", nil, nil))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-123")

	err := Logger(logger)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"level":"info"`, `"request_id":"req-123"`, `"user_id":"user-1"`, `"status":200`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in log line: %s", want, out)
		}
	}
}

func TestLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		err   error
		level string
	}{
		{echo.NewHTTPError(http.StatusNotFound, "missing"), "warn"},
		{echo.NewHTTPError(http.StatusServiceUnavailable, "down"), "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		e := echo.New()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

		Logger(zerolog.New(&buf))(func(echo.Context) error { return tt.err })(c)

		if !strings.Contains(buf.String(), `"level":"`+tt.level+`"`) {
			t.Errorf("expected level %s, got %s", tt.level, buf.String())
		}
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := Recovery(zerolog.New(&buf))(func(c echo.Context) error {
		panic("test panic")
	})(c)

	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
	if strings.Contains(httpErr.Message.(string), "test panic") {
		t.Error("panic value must not leak into the response")
	}
	if !strings.Contains(buf.String(), "test panic") {
		t.Error("expected panic value in the log")
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	SecurityHeaders(false)(func(echo.Context) error { return nil })(c)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store")
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Error("expected no HSTS when disabled")
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	SecurityHeaders(true)(func(echo.Context) error { return nil })(c)
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Error("expected HSTS when enabled")
	}
}

func TestAudit_RecordsPatientAccess(t *testing.T) {
	id := "0b6f6e3c-8f44-4a7e-9a0c-2f4b1f0c7d11"
	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/patients/"+id, nil)
	req = req.WithContext(auth.WithPrincipal(context.Background(), "user-7", []string{"admin"}, nil))
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("request_id", "req-9")

	err := Audit(zerolog.Nop(), "/api/v1/patients", rec)(func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	entry := got[0]
	if entry.Action != "delete" || entry.PatientID != id || entry.UserID != "user-7" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.RequestID != "req-9" || entry.StatusCode != http.StatusNoContent {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestAudit_SearchAndSkip(t *testing.T) {
	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return errors.New("store down")
	})
	mw := Audit(zerolog.Nop(), "/api/v1/patients", rec)
	next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e := echo.New()

	mw(next)(e.NewContext(httptest.NewRequest(http.MethodGet, "/health/live", nil), httptest.NewRecorder()))
	if len(got) != 0 {
		t.Fatalf("expected paths outside the prefix to be skipped")
	}

	err := mw(next)(e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/patients/search?q=lee", nil), httptest.NewRecorder()))
	if err != nil {
		t.Fatalf("recorder failure must not fail the request: %v", err)
	}
	if len(got) != 1 || got[0].Action != "search" || got[0].PatientID != "" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

// Authentication sits on a route group, so it runs after the global
// middlewares have captured the request.
func TestAuditAndLogger_SeePrincipalFromGroupAuth(t *testing.T) {
	var buf bytes.Buffer
	var got []AuditEntry
	rec := AuditRecorderFunc(func(entry AuditEntry) error {
		got = append(got, entry)
		return nil
	})

	e := echo.New()
	e.Use(Logger(zerolog.New(&buf)))
	e.Use(Audit(zerolog.Nop(), "/api/v1/patients", rec))
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	api.GET("/patients/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	id := "0b6f6e3c-8f44-4a7e-9a0c-2f4b1f0c7d11"
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/patients/"+id, nil))

	if len(got) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(got))
	}
	if got[0].UserID != "dev-user" {
		t.Errorf("expected audit user dev-user, got %q", got[0].UserID)
	}
	if len(got[0].UserRoles) != 1 || got[0].UserRoles[0] != "admin" {
		t.Errorf("expected audit roles [admin], got %v", got[0].UserRoles)
	}
	if !strings.Contains(buf.String(), `"user_id":"dev-user"`) {
		t.Errorf("expected user in request log: %s", buf.String())
	}
}
