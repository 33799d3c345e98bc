package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := echo.New()
	e.Use(HTTPMetrics(reg))
	e.GET("/api/v1/consultations/:id", func(c echo.Context) error {
		if c.Param("id") == "missing" {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}
		if c.Param("id") == "boom" {
			return errors.New("boom")
		}
		return c.NoContent(http.StatusOK)
	})

	for _, id := range []string{"a", "b", "missing", "boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/consultations/"+id, nil))
	}

	route := "/api/v1/consultations/:id"
	tests := []struct {
		status string
		want   float64
	}{
		{"200", 2},
		{"404", 1},
		{"500", 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "clinicreport_http_requests_total", map[string]string{"route": route, "status": tt.status})
		if m == nil {
			t.Errorf("status %s: metric not found", tt.status)
			continue
		}
		if got := m.GetCounter().GetValue(); got != tt.want {
			t.Errorf("status %s: got %v, want %v", tt.status, got, tt.want)
		}
	}

	if m := findMetric(t, reg, "clinicreport_http_request_duration_seconds", map[string]string{"route": route}); m == nil || m.GetHistogram().GetSampleCount() != 4 {
		t.Errorf("expected 4 latency samples, got %v", m)
	}
	if m := findMetric(t, reg, "clinicreport_http_requests_in_flight", nil); m == nil || m.GetGauge().GetValue() != 0 {
		t.Errorf("expected no requests in flight, got %v", m)
	}
}
