package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// newTestRouter wires handlers without backing services. Requests in these
// tests never get past the auth middleware.
func newTestRouter(t *testing.T) (*gin.Engine, *service.AuthService) {
	t.Helper()
	cfg := &config.Config{
		GinMode:        gin.TestMode,
		JWTSecret:      "router-secret",
		JWTExpiry:      time.Hour,
		AuthRateLimit:  1,
		AuthRateBurst:  5,
		AllowedOrigins: []string{"https://exam.example.sch.id"},
	}
	auth := service.NewAuthService(cfg, nil)
	log := zerolog.Nop()
	handlers := &Handlers{
		Auth:      handler.NewAuthHandler(auth, nil, nil, log),
		Test:      handler.NewTestHandler(nil, nil, nil, 50<<20, log),
		StaffTest: handler.NewStaffTestHandler(nil, nil, nil, 50<<20, log),
		Monitor:   handler.NewMonitorHandler(nil, log, cfg.AllowedOrigins),
		System:    handler.NewSystemHandler(nil, nil, log),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return SetupRouter(ctx, auth, handlers, cfg), auth
}

func TestRouteProtection(t *testing.T) {
	r, auth := newTestRouter(t)

	reader, err := auth.GenerateStaffToken(3, 2, []string{string(model.PermissionTestsRead)})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"available needs student", http.MethodGet, "/api/v1/tests/available", "", http.StatusUnauthorized},
		{"submit needs student", http.MethodPost, "/api/v1/tests/submit", "", http.StatusUnauthorized},
		{"staff token on student route", http.MethodGet, "/api/v1/tests/available", reader, http.StatusForbidden},
		{"create needs tests:write", http.MethodPost, "/api/v1/staff/tests", reader, http.StatusForbidden},
		{"grade needs submissions:grade", http.MethodPatch, "/api/v1/staff/submissions/x/grade", reader, http.StatusForbidden},
		{"reset needs proctoring:reset", http.MethodPost, "/api/v1/tests/x/reset-compromise/1", reader, http.StatusForbidden},
		{"session reset needs proctoring:reset", http.MethodPost, "/api/v1/staff/students/1/reset-session", reader, http.StatusForbidden},
		{"monitor needs token", http.MethodGet, "/ws/v1/staff/tests/x/monitor", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestMonitorNeedsPermission(t *testing.T) {
	r, auth := newTestRouter(t)
	token, _ := auth.GenerateStaffToken(3, 2, []string{string(model.PermissionTestsRead)})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws/v1/staff/tests/x/monitor?token="+token, nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	// One request so the counters have a sample.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tests/available", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tests/submit", nil)
	req.Header.Set("Origin", "https://exam.example.sch.id")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://exam.example.sch.id" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/tests/submit", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
