package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/config"
	"cvalue-web/internal/shared/server/middleware"
)

func TestBuildDevUsesMemoryAndLocalStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	app, err := Build(context.Background(), config.Config{
		Env:           "dev",
		APIBaseURL:    upstream.URL,
		ImagesAPIURL:  upstream.URL,
		LocalStoreDir: t.TempDir(),
		AppName:       "CValue",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close(context.Background())

	if app.DB != nil {
		t.Fatalf("expected no database in dev without DATABASE_URL")
	}
	if app.Router == nil || app.Registry == nil || app.Blobs == nil {
		t.Fatalf("expected router, registry and blob manager to be built")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/preferences", nil)
	req.Header.Set(middleware.VisitorHeader, "visitor-0001")
	resp := httptest.NewRecorder()
	app.Router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected preferences 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	app.Router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health/upstream", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected upstream health 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestBuildProductionRequiresDatabase(t *testing.T) {
	if _, err := Build(context.Background(), config.Config{Env: "production", LocalStoreDir: t.TempDir()}); err == nil {
		t.Fatal("expected error without DATABASE_URL in production")
	}
}

func TestIsDevLike(t *testing.T) {
	for env, want := range map[string]bool{"dev": true, "LOCAL": true, "production": false, "staging": false} {
		if got := isDevLike(env); got != want {
			t.Fatalf("isDevLike(%q) = %v, want %v", env, got, want)
		}
	}
}
