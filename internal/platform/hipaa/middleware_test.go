package hipaa

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

	"github.com/ehr/clinicreport/internal/platform/auth"
)

type failingLog struct{}

func (failingLog) Record(context.Context, *AccessEntry) error { return errors.New("db down") }
func (failingLog) List(context.Context, AccessFilter, int, int) ([]*AccessEntry, int, error) {
	return nil, 0, errors.New("db down")
}

func newAuditedEcho(log AccessLog, logger zerolog.Logger, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "dr-hopper")
			ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RoleClinician})
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("request_id", "rid-9")
			return next(c)
		}
	}, AccessLogger(log, "/api/v1", logger))
	api.GET("/consultations/:id/report", handler)
	api.POST("/patients", handler)
	api.POST("/consultations", handler)
	api.GET("/health-ish", handler)
	return e
}

func TestAccessLogger_RecordsPHIRoute(t *testing.T) {
	log := NewMemoryAccessLog()
	e := newAuditedEcho(log, zerolog.Nop(), func(c echo.Context) error {
		return c.Blob(http.StatusOK, "application/pdf", []byte("%PDF-"))
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/consultations/c-42/report", nil)
	req.Header.Set("User-Agent", "report-client/1.0")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	items, total, _ := log.List(context.Background(), AccessFilter{}, 10, 0)
	if total != 1 {
		t.Fatalf("expected 1 entry, got %d", total)
	}
	got := items[0]
	if got.ResourceType != ResourceConsultationReport || got.Action != "download" || got.ResourceID != "c-42" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.UserID != "dr-hopper" || got.Status != http.StatusOK || got.RequestID != "rid-9" {
		t.Errorf("unexpected identity or status %+v", got)
	}
	if got.UserAgent != "report-client/1.0" {
		t.Errorf("expected user agent recorded, got %q", got.UserAgent)
	}
}

func TestAccessLogger_RecordsCreates(t *testing.T) {
	log := NewMemoryAccessLog()
	e := newAuditedEcho(log, zerolog.Nop(), func(c echo.Context) error {
		c.Set(ResourceIDKey, "new-1")
		return c.JSON(http.StatusCreated, map[string]string{"id": "new-1"})
	})

	for _, path := range []string{"/api/v1/patients", "/api/v1/consultations"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		e.ServeHTTP(httptest.NewRecorder(), req)
	}

	items, total, _ := log.List(context.Background(), AccessFilter{}, 10, 0)
	if total != 2 {
		t.Fatalf("expected 2 entries, got %d", total)
	}
	seen := map[string]bool{}
	for _, it := range items {
		if it.Action != "create" || it.ResourceID != "new-1" || it.Status != http.StatusCreated {
			t.Errorf("unexpected entry %+v", it)
		}
		seen[it.ResourceType] = true
	}
	if !seen[ResourcePatient] || !seen[ResourceConsultation] {
		t.Errorf("expected patient and consultation creates, got %v", seen)
	}
}

func TestAccessLogger_RecordsFailedRequests(t *testing.T) {
	log := NewMemoryAccessLog()
	e := newAuditedEcho(log, zerolog.Nop(), func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "required role: clinician")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consultations/c-1/report", nil))

	items, _, _ := log.List(context.Background(), AccessFilter{}, 10, 0)
	if len(items) != 1 || items[0].Status != http.StatusForbidden {
		t.Fatalf("expected a 403 entry, got %+v", items)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected the error to reach the client, got %d", rec.Code)
	}
}

func TestAccessLogger_IgnoresOtherRoutes(t *testing.T) {
	log := NewMemoryAccessLog()
	e := newAuditedEcho(log, zerolog.Nop(), func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health-ish", nil))

	if _, total, _ := log.List(context.Background(), AccessFilter{}, 10, 0); total != 0 {
		t.Errorf("expected no entries, got %d", total)
	}
}

func TestAccessLogger_RecordFailureDoesNotFailRequest(t *testing.T) {
	var buf bytes.Buffer
	e := newAuditedEcho(failingLog{}, zerolog.New(&buf), func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consultations/c-1/report", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "failed to record phi access") {
		t.Errorf("expected the failure to be logged, got %q", buf.String())
	}
}
