package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/config"
	"hamo/backend/internal/handlers"
	"hamo/backend/internal/kvstore"
	"hamo/backend/internal/security"
)

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.AppConfig{
		Environment:      "test",
		HTTP:             config.HTTPConfig{Host: "127.0.0.1", Port: 0},
		Store:            config.StoreConfig{Driver: kvstore.DriverMemory},
		Security:         config.SecurityConfig{JWTSecret: "s"},
		Invites:          config.InviteConfig{TTL: time.Hour, CodePrefix: "HAMO-", CodeBytes: 3, MaxAttempts: 5},
		Transcript:       config.TranscriptConfig{Scope: "pair", DefaultLimit: 100, MaxLimit: 1000},
		AllowCORSOrigins: []string{"https://app.example.com"},
	}
	verifier, err := security.NewTokenVerifier(cfg.Security)
	require.NoError(t, err)

	handlerSet := handlers.NewHandlerSet(zerolog.Nop(), cfg, handlers.Dependencies{
		Store:    kvstore.NewMemory(),
		Verifier: verifier,
	})
	return NewHTTPServer(cfg, zerolog.Nop(), handlerSet)
}

func TestRoutesAndFallbacks(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"not_found","message":"route not found"}`, w.Body.String())

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/user/init", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/user/profile", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
