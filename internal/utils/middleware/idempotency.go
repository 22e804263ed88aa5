package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// idempotencyKeyPrefix is the Redis key prefix.
	idempotencyKeyPrefix = "idempotency:"
	// defaultIdempotencyTTL is the default TTL for idempotency keys.
	defaultIdempotencyTTL = 24 * time.Hour
)

// idempotencyResponse stores the cached response.
type idempotencyResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Body       []byte            `json:"body"`
}

// idempotencyResponseWriter wraps gin.ResponseWriter to capture the response.
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency returns a middleware that replays the cached response for a
// repeated Idempotency-Key. Used on purchase settlement so a client retry
// cannot charge twice. Applies to mutating methods only; requests without
// the header pass through.
func Idempotency(redis *goredis.Client, ttl time.Duration) gin.HandlerFunc {
	if ttl == 0 {
		ttl = defaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		// Skip if Redis is nil
		if redis == nil {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := generateIdempotencyKey(c, idempotencyKey)

		cachedResp, err := getCachedResponse(ctx, redis, cacheKey)
		if err == nil && cachedResp != nil {
			for k, v := range cachedResp.Headers {
				c.Header(k, v)
			}
			c.Data(cachedResp.StatusCode, c.Writer.Header().Get("Content-Type"), cachedResp.Body)
			c.Abort()
			return
		}

		// Lock so a concurrent retry cannot run the settlement twice
		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, "1", 30*time.Second).Result()
		if err != nil {
			c.Next()
			return
		}

		if !locked {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "REQUEST_IN_PROGRESS",
					"message": "A request with this idempotency key is already being processed",
				},
			})
			return
		}

		defer redis.Del(ctx, lockKey)

		respWriter := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = respWriter

		c.Next()

		// Cache everything except server errors, which the client may retry
		if c.Writer.Status() >= 200 && c.Writer.Status() < 500 {
			headers := make(map[string]string)
			for k := range c.Writer.Header() {
				headers[k] = c.Writer.Header().Get(k)
			}

			resp := &idempotencyResponse{
				StatusCode: c.Writer.Status(),
				Headers:    headers,
				Body:       respWriter.body.Bytes(),
			}

			cacheResponse(ctx, redis, cacheKey, resp, ttl)
		}
	}
}

// generateIdempotencyKey scopes the cache key to the authenticated user,
// method, and route, so the same header value on different endpoints or
// from different users never collides.
func generateIdempotencyKey(c *gin.Context, idempotencyKey string) string {
	userID := GetUserID(c).String()
	hash := sha256.Sum256([]byte(userID + ":" + c.Request.Method + ":" + c.FullPath() + ":" + idempotencyKey))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

// getCachedResponse retrieves a cached response from Redis.
func getCachedResponse(ctx context.Context, redis *goredis.Client, key string) (*idempotencyResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var resp idempotencyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// cacheResponse stores a response in Redis.
func cacheResponse(ctx context.Context, redis *goredis.Client, key string, resp *idempotencyResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return redis.Set(ctx, key, data, ttl).Err()
}
