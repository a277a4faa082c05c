package preferences

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"cvalue-web/internal/shared/server/middleware"
)

func newPreferencesRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Visitor(false))
	NewHandler(newTestService()).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func call(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.VisitorHeader, "visitor-0001")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) preferencesResponse {
	t.Helper()
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out preferencesResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestPreferencesRoutes(t *testing.T) {
	router := newPreferencesRouter()

	got := decode(t, call(router, http.MethodGet, "/api/v1/preferences", ""))
	if got.Theme != ThemeLight || got.Language != LanguageArabic || got.Direction != "rtl" {
		t.Fatalf("unexpected defaults %+v", got)
	}

	got = decode(t, call(router, http.MethodPost, "/api/v1/preferences/theme/toggle", ""))
	if got.Theme != ThemeDark {
		t.Fatalf("expected dark theme, got %+v", got)
	}

	got = decode(t, call(router, http.MethodPut, "/api/v1/preferences", `{"language":"en"}`))
	if got.Language != LanguageEnglish || got.Direction != "ltr" || got.Theme != ThemeDark {
		t.Fatalf("unexpected preferences %+v", got)
	}

	got = decode(t, call(router, http.MethodPost, "/api/v1/preferences/language/toggle", ""))
	if got.Language != LanguageArabic {
		t.Fatalf("expected arabic after toggle, got %+v", got)
	}
}

func TestPutRejectsUnknownValues(t *testing.T) {
	resp := call(newPreferencesRouter(), http.MethodPut, "/api/v1/preferences", `{"theme":"neon"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
