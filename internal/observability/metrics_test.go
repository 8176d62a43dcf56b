package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("APPROVE_LISTINGS", true)
	metrics.ObserveDecision("APPROVE_LISTINGS", false)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `accessd_authorization_decisions_total{outcome="allow",permission="APPROVE_LISTINGS"} 1`) {
		t.Fatalf("expected allow counter, got: %s", body)
	}
	if !strings.Contains(body, `accessd_authorization_decisions_total{outcome="deny",permission="APPROVE_LISTINGS"} 1`) {
		t.Fatalf("expected deny counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/access/roles")

	req := httptest.NewRequest(http.MethodGet, "/access/roles", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	if !strings.Contains(body, `accessd_http_requests_total{code="403",route="/access/roles"} 1`) {
		t.Fatalf("expected request counter, got: %s", body)
	}
	if !strings.Contains(body, `accessd_http_request_duration_seconds_bucket{route="/access/roles"`) {
		t.Fatalf("expected duration histogram, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveDecision("MANAGE_USERS", true)

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("nil middleware must pass through, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from nil handler, got %d", rr.Code)
	}
}
