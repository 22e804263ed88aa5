package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chatforge/server/internal/module/identity"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	id  *identity.Identity
	err error
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (*identity.Identity, error) {
	return v.id, v.err
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		existingID := "existing-request-id-123"
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, existingID)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, existingID, w.Header().Get(RequestIDHeader))
		assert.Equal(t, existingID, w.Body.String())
	})
}

func TestAuth(t *testing.T) {
	userID := uuid.New()

	t.Run("sets identity on valid token", func(t *testing.T) {
		verifier := &stubVerifier{id: &identity.Identity{
			UserID:        userID,
			Email:         "user@example.com",
			EmailVerified: true,
		}}

		router := gin.New()
		router.Use(RequireAuth(verifier))
		router.GET("/me", func(c *gin.Context) {
			assert.Equal(t, userID, GetUserID(c))
			id := GetIdentity(c)
			require.NotNil(t, id)
			assert.Equal(t, "user@example.com", id.Email)
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+"sometoken")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects missing header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequireAuth(&stubVerifier{}))
		router.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/me", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "UNAUTHORIZED")
	})

	t.Run("rejects invalid token", func(t *testing.T) {
		router := gin.New()
		router.Use(RequireAuth(&stubVerifier{err: identity.ErrInvalidToken}))
		router.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/me", nil)
		req.Header.Set(AuthorizationHeader, BearerPrefix+"bad")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
	})

	t.Run("optional auth passes through without token", func(t *testing.T) {
		router := gin.New()
		router.Use(OptionalAuth(&stubVerifier{}))
		router.GET("/public", func(c *gin.Context) {
			assert.False(t, IsAuthenticated(c))
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest("GET", "/public", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestLogging(t *testing.T) {
	newObserved := func(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
		core, logs := observer.New(level)
		return zap.New(core), logs
	}

	t.Run("logs successful requests at info", func(t *testing.T) {
		log, logs := newObserved(zapcore.InfoLevel)

		router := gin.New()
		router.Use(RequestID())
		router.Use(Logging(log))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		})

		req := httptest.NewRequest("GET", "/test?foo=bar", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.InfoLevel, entry.Level)
		assert.Equal(t, "HTTP Request", entry.Message)

		fields := entry.ContextMap()
		assert.Equal(t, int64(http.StatusOK), fields["status"])
		assert.Equal(t, "GET", fields["method"])
		assert.Equal(t, "/test", fields["path"])
		assert.Equal(t, "foo=bar", fields["query"])
		assert.NotEmpty(t, fields["request_id"])
	})

	t.Run("logs 4xx as warnings", func(t *testing.T) {
		log, logs := newObserved(zapcore.WarnLevel)

		router := gin.New()
		router.Use(Logging(log))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusNotFound, "not found")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	})

	t.Run("logs 5xx as errors", func(t *testing.T) {
		log, logs := newObserved(zapcore.ErrorLevel)

		router := gin.New()
		router.Use(Logging(log))
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusInternalServerError, "error")
		})

		req := httptest.NewRequest("GET", "/test", nil)
		router.ServeHTTP(httptest.NewRecorder(), req)

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	})
}

func TestRecovery(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		log := zap.New(core)

		router := gin.New()
		router.Use(Recovery(log))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()

		require.NotPanics(t, func() {
			router.ServeHTTP(w, req)
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")

		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "Panic recovered", logs.All()[0].Message)
	})

	t.Run("uses nop logger when nil", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(nil))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest("GET", "/panic", nil)
		w := httptest.NewRecorder()

		require.NotPanics(t, func() {
			router.ServeHTTP(w, req)
		})

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

type fakeLimiter struct {
	allowed   bool
	remaining int
}

func (f *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return f.allowed, nil
}

func (f *fakeLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	return f.remaining, nil
}

type errorLimiter struct{}

func (errorLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func (errorLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	return 0, errors.New("redis down")
}

func TestRateLimit(t *testing.T) {
	t.Run("allows request under limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimitByIP(&fakeLimiter{allowed: true, remaining: 9}, 10, time.Minute))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "10", w.Header().Get(RateLimitLimit))
		assert.Equal(t, "9", w.Header().Get(RateLimitRemaining))
	})

	t.Run("rejects request over limit", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimitByIP(&fakeLimiter{allowed: false}, 10, time.Minute))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")
		assert.NotEmpty(t, w.Header().Get(RetryAfter))
	})

	t.Run("fails open on limiter error", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimitByIP(errorLimiter{}, 10, time.Minute))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("passes through with nil limiter", func(t *testing.T) {
		router := gin.New()
		router.Use(RateLimit(nil, DefaultRateLimitConfig()))
		router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
