package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveJob("balance_snapshot", nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)

	metrics.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "gestcom_jobs_total") {
		t.Fatalf("expected body to contain gestcom_jobs_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `gestcom_http_requests_total{code="418",route="/test"}`) {
		t.Fatalf("request counter missing, got: %s", body)
	}
}

func TestObserveJobOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveJob("stock_integrity", nil)
	metrics.ObserveJob("stock_integrity", errors.New("boom"))

	body := scrape(t, metrics)
	if !strings.Contains(body, `gestcom_jobs_total{outcome="ok",task="stock_integrity"} 1`) {
		t.Fatalf("ok counter missing, got: %s", body)
	}
	if !strings.Contains(body, `gestcom_jobs_total{outcome="error",task="stock_integrity"} 1`) {
		t.Fatalf("error counter missing, got: %s", body)
	}
}

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Body.String()
}
