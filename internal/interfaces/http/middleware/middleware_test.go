package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/turtacn/fincore-risk/internal/application/dto"
	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/internal/domain/service"
	"github.com/turtacn/fincore-risk/internal/infrastructure/monitoring"
	"github.com/turtacn/fincore-risk/pkg/constants"
	"github.com/turtacn/fincore-risk/pkg/errors"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *dto.ErrorDTO {
	t.Helper()
	var body dto.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.NotNil(t, body.Error)
	return body.Error
}

// ================================================================================
// Idempotency
// ================================================================================

func TestIdempotencyMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.IdempotencyConfig{Enabled: true, TTL: time.Hour}

	calls := 0
	router := gin.New()
	router.Use(IdempotencyMiddleware(client, cfg, logger.NewNoopLogger()))
	router.POST("/risk/passes", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/risk/passes", nil)
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("first use of a key runs the handler", func(t *testing.T) {
		w := send("pass-1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, calls)
		assert.True(t, mr.Exists(constants.IdempotencyKeyPrefix+"pass-1"))
		assert.InDelta(t, time.Hour.Seconds(), mr.TTL(constants.IdempotencyKeyPrefix+"pass-1").Seconds(), 1)
	})

	t.Run("replayed key is rejected without running the handler", func(t *testing.T) {
		w := send("pass-1")
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, 1, calls)
		assert.Equal(t, string(constants.ErrCodeConflict), decodeError(t, w).Code)
	})

	t.Run("requests without a key are not deduplicated", func(t *testing.T) {
		before := calls
		assert.Equal(t, http.StatusOK, send("").Code)
		assert.Equal(t, http.StatusOK, send("").Code)
		assert.Equal(t, before+2, calls)
	})

	t.Run("oversized key is rejected", func(t *testing.T) {
		long := make([]byte, maxIdempotencyKeyLength+1)
		for i := range long {
			long[i] = 'k'
		}
		w := send(string(long))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(constants.ErrCodeInvalidRequest), decodeError(t, w).Code)
	})

	t.Run("redis failure fails open", func(t *testing.T) {
		mr.Close()
		before := calls
		w := send("pass-2")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, before+1, calls)
	})
}

func TestIdempotencyMiddleware_ReleasesKeyOnFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	statuses := []int{http.StatusInternalServerError, http.StatusBadRequest, http.StatusCreated}
	calls := 0
	router := gin.New()
	router.Use(IdempotencyMiddleware(client, &config.IdempotencyConfig{Enabled: true, TTL: time.Hour}, logger.NewNoopLogger()))
	router.POST("/risk/passes", func(c *gin.Context) {
		c.Status(statuses[calls])
		calls++
	})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/risk/passes", nil)
		req.Header.Set(IdempotencyKeyHeader, "pass-retry")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusInternalServerError, send())
	assert.False(t, mr.Exists(constants.IdempotencyKeyPrefix+"pass-retry"))

	assert.Equal(t, http.StatusBadRequest, send())
	assert.False(t, mr.Exists(constants.IdempotencyKeyPrefix+"pass-retry"))

	assert.Equal(t, http.StatusCreated, send())
	assert.True(t, mr.Exists(constants.IdempotencyKeyPrefix+"pass-retry"))

	assert.Equal(t, http.StatusConflict, send())
	assert.Equal(t, 3, calls)
}

func TestIdempotencyMiddleware_Disabled(t *testing.T) {
	calls := 0
	router := gin.New()
	router.Use(IdempotencyMiddleware(nil, &config.IdempotencyConfig{Enabled: false}, logger.NewNoopLogger()))
	router.POST("/", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(IdempotencyKeyHeader, "same")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, calls)
}

// ================================================================================
// Rate limiting
// ================================================================================

type stubLimiter struct {
	mu        sync.Mutex
	decisions []service.RateLimitDecision
	err       error
	seen      []string
}

func (s *stubLimiter) Allow(_ context.Context, route, clientID string) (service.RateLimitDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, route+"|"+clientID)
	if s.err != nil {
		return service.RateLimitDecision{}, s.err
	}
	d := s.decisions[0]
	if len(s.decisions) > 1 {
		s.decisions = s.decisions[1:]
	}
	return d, nil
}

type hitCounter struct{ routes []string }

func (h *hitCounter) RecordRateLimitHit(route string) { h.routes = append(h.routes, route) }

func TestRateLimitMiddleware(t *testing.T) {
	newRouter := func(limiter service.RateLimiter, hits *hitCounter) *gin.Engine {
		router := gin.New()
		router.POST("/classify", RateLimitMiddleware(limiter, hits, logger.NewNoopLogger()), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return router
	}
	post := func(router *gin.Engine) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/classify", nil)
		req.RemoteAddr = "10.0.0.7:4321"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("allowed request carries budget headers", func(t *testing.T) {
		limiter := &stubLimiter{decisions: []service.RateLimitDecision{{Allowed: true, Limit: 5, Remaining: 4}}}
		hits := &hitCounter{}
		w := post(newRouter(limiter, hits))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "4", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, []string{"/classify|10.0.0.7"}, limiter.seen)
		assert.Empty(t, hits.routes)
	})

	t.Run("exhausted bucket answers 429 with Retry-After", func(t *testing.T) {
		limiter := &stubLimiter{decisions: []service.RateLimitDecision{{Allowed: false, Limit: 5, RetryAfter: 1500 * time.Millisecond}}}
		hits := &hitCounter{}
		w := post(newRouter(limiter, hits))

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, string(constants.ErrCodeRateLimited), decodeError(t, w).Code)
		assert.Equal(t, []string{"/classify"}, hits.routes)
	})

	t.Run("sub-second wait still advertises one second", func(t *testing.T) {
		limiter := &stubLimiter{decisions: []service.RateLimitDecision{{Allowed: false, Limit: 5, RetryAfter: 10 * time.Millisecond}}}
		w := post(newRouter(limiter, &hitCounter{}))
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.ErrServerError("redis down")}
		w := post(newRouter(limiter, &hitCounter{}))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("nil limiter disables the middleware", func(t *testing.T) {
		w := post(newRouter(nil, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// ================================================================================
// Observability, request id, recovery, ETag
// ================================================================================

func TestObservabilityMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	var traceID string
	router := gin.New()
	router.Use(ObservabilityMiddleware(provider.Tracer("test"), metrics.HTTPRequestsTotal, metrics.HTTPRequestDuration))
	router.GET("/risk/entities/:entity_id", func(c *gin.Context) {
		traceID, _ = c.Request.Context().Value(constants.ContextKeyTraceID).(string)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/risk/entities/B-1", nil))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/risk/entities/:entity_id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "not_found", "404")))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "GET /risk/entities/:entity_id", spans[0].Name())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
}

func TestRequestID(t *testing.T) {
	var seen string
	router := gin.New()
	router.Use(RequestID(), AccessLog(logger.NewNoopLogger()))
	router.GET("/", func(c *gin.Context) {
		seen, _ = c.Request.Context().Value(constants.ContextKeyRequestID).(string)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "caller-id", seen)
	assert.Equal(t, "caller-id", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(logger.NewNoopLogger()))
	router.GET("/", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, string(constants.ErrCodeServerError), decodeError(t, w).Code)
}

func TestETagCache(t *testing.T) {
	body := gin.H{"band": "High"}
	router := gin.New()
	router.Use(ETagCache())
	router.GET("/profile", func(c *gin.Context) { c.JSON(http.StatusOK, body) })
	router.GET("/gone", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "nope"}) })
	router.POST("/profile", func(c *gin.Context) { c.JSON(http.StatusOK, body) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.JSONEq(t, `{"band":"High"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/profile", nil)
	req.Header.Set("If-None-Match", `"stale"`)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, etag, w.Header().Get("ETag"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/gone", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/profile", nil))
	assert.Empty(t, w.Header().Get("ETag"))
}
