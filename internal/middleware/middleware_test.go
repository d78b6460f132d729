package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/security"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct{}

func (stubVerifier) Verify(token string) (security.Identity, error) {
	if token == "good" {
		return security.Identity{SubjectID: "sub-1", TokenUse: "id"}, nil
	}
	return security.Identity{}, errors.New("bad token")
}

func TestAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", Auth(stubVerifier{}), func(c *gin.Context) {
		id, _ := CurrentIdentity(c)
		c.String(http.StatusOK, id.SubjectID)
	})

	for _, tc := range []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Basic abc", http.StatusUnauthorized},
		{"Bearer nope", http.StatusUnauthorized},
		{"Bearer good", http.StatusOK},
	} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, tc.header)
	}
}

func newIdempotentRouter(t *testing.T, status int) (*gin.Engine, *atomic.Int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var calls atomic.Int32
	r := gin.New()
	r.POST("/msg", Auth(stubVerifier{}), Idempotency(rdb, time.Hour, zerolog.Nop()), func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(status, gin.H{"call": n})
	})
	return r, &calls
}

func post(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/msg", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	r, calls := newIdempotentRouter(t, http.StatusCreated)

	first := post(r, "k1", `{"text":"hi"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := post(r, "k1", `{"text":"hi"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotentReplayHeader))
	assert.Equal(t, int32(1), calls.Load())

	reused := post(r, "k1", `{"text":"other"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, reused.Code)

	post(r, "k2", `{"text":"hi"}`)
	post(r, "", `{"text":"hi"}`)
	assert.Equal(t, int32(3), calls.Load())
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	r, calls := newIdempotentRouter(t, http.StatusBadGateway)

	post(r, "k1", `{}`)
	post(r, "k1", `{}`)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://pro.hamo.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://pro.hamo.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://pro.hamo.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), IdempotencyKeyHeader)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryAndRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(requestIDHeader))
	assert.Contains(t, w.Body.String(), "internal_error")
}
