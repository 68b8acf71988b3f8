package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bistrohq/bistro-backend/api/controllers"
	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubStore struct{}

func (stubStore) Get(context.Context, string) (string, error) { return "", nil }
func (stubStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return true, nil
}
func (stubStore) Set(context.Context, string, any, time.Duration) error { return nil }
func (stubStore) IdempotencyKey(scope, id string) string               { return scope + ":" + id }
func (stubStore) Del(context.Context, ...string) error                 { return nil }

var paramPattern = regexp.MustCompile(`\{[^}]+\}`)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:                "dev",
			Port:               "8080",
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

func newTestRouter(t *testing.T, registry *prometheus.Registry) http.Handler {
	t.Helper()
	return NewRouter(Dependencies{
		Config:           testConfig(),
		Logger:           logger.Nop(),
		Registry:         registry,
		ReadinessChecks:  map[string]controllers.Pinger{"db": stubPinger{}},
		IdempotencyStore: stubStore{},
	})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Bistro-Env"); got != "dev" {
		t.Fatalf("expected env header dev, got %q", got)
	}
}

func TestReadyFailsWhenDependencyDown(t *testing.T) {
	router := NewRouter(Dependencies{
		Config: testConfig(),
		Logger: logger.Nop(),
		ReadinessChecks: map[string]controllers.Pinger{
			"db":    stubPinger{},
			"redis": stubPinger{err: context.DeadlineExceeded},
		},
	})

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestMetricsEndpointExposesHTTPSeries(t *testing.T) {
	registry := prometheus.NewRegistry()
	router := newTestRouter(t, registry)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `bistro_http_requests_total{method="GET",route="/api/v1/ping",status="200"} 1`) {
		t.Fatalf("ping request missing from metrics output:\n%s", body)
	}
}

func TestMetricsEndpointIsReadOnly(t *testing.T) {
	router := newTestRouter(t, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/metrics", nil))

	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestMutatingRoutesRequireIdempotencyKey(t *testing.T) {
	router := newTestRouter(t, nil)
	routes, ok := router.(chi.Routes)
	if !ok {
		t.Fatal("router does not expose chi routes")
	}

	var mutating []string
	err := chi.Walk(routes, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		if method != http.MethodPost && method != http.MethodDelete {
			return nil
		}
		mutating = append(mutating, method+" "+route)

		path := paramPattern.ReplaceAllStringFunc(route, func(string) string { return uuid.NewString() })
		req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)

		if resp.Code != http.StatusBadRequest || !strings.Contains(resp.Body.String(), "Idempotency-Key header required") {
			t.Errorf("%s %s: expected idempotency rejection, got %d %s", method, route, resp.Code, resp.Body.String())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk routes: %v", err)
	}
	if len(mutating) != 8 {
		t.Fatalf("expected 8 mutating routes, got %d: %v", len(mutating), mutating)
	}
}

func TestReadRoutesSkipIdempotency(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/"+uuid.NewString()+"/balance", nil))

	// nil inventory service answers 500, but the request got past routing and middleware.
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from unwired service, got %d", resp.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/menus", nil))

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
