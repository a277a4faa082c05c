package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/services/health"
	"cvalue-web/internal/shared/config"
	"cvalue-web/internal/shared/server/middleware"
)

func testRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(RouterDeps{
		Config:        config.Config{Env: "dev", AppName: "CValue", AppVersion: "1.0.0", CORSAllowOrigin: []string{"http://localhost:5173"}},
		HealthHandler: health.NewHandler(health.NewService(nil)),
	})
}

func TestMeReturnsVisitorIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set(middleware.VisitorHeader, "visitor-0001")
	resp := httptest.NewRecorder()
	testRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["visitorId"] != "visitor-0001" || body["appName"] != "CValue" {
		t.Fatalf("unexpected body %v", body)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthAndMetricsMounted(t *testing.T) {
	router := testRouter()

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "blobs_live") {
		t.Fatalf("expected metrics exposition, got %d %s", resp.Code, resp.Body.String())
	}
}

func TestRateLimitGroups(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[string]string{
		"/api/v1/orders/:serviceType":   middleware.RateLimitUpload,
		"/api/v1/previews/:id/payments": middleware.RateLimitPayment,
		"/api/v1/previews":              "",
	}
	for route, want := range cases {
		r := gin.New()
		var got string
		r.POST(route, func(c *gin.Context) { got = rateLimitGroup(c) })
		path := strings.NewReplacer(":serviceType", "cv", ":id", "abc").Replace(route)
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, path, nil))
		if got != want {
			t.Fatalf("route %s: got group %q want %q", route, got, want)
		}
	}
}

func TestAddr(t *testing.T) {
	for in, want := range map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"} {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
