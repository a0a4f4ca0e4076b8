package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/CodeCraftersLLC/local-voice-mcp/internal/metrics"
	"github.com/CodeCraftersLLC/local-voice-mcp/internal/security"
)

const (
	headerRequestID = "X-Request-ID"
	headerAPIKey    = "X-API-Key"
	ctxRequestID    = "requestID"
)

// requestID reuses a well-formed inbound request id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := security.SanitizeArg(c.GetHeader(headerRequestID), security.ArgOptions{MaxLen: 64})
		if err != nil {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(route, status)

		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).Round(time.Millisecond),
			"bytes", c.Writer.Size(),
			"request", c.GetString(ctxRequestID),
		)
	}
}

// apiKeyAuth compares the X-API-Key header with key in constant time. Both
// sides are hashed first so the comparison does not depend on key length.
func apiKeyAuth(key string) gin.HandlerFunc {
	want := sha256.Sum256([]byte(key))
	return func(c *gin.Context) {
		if key == "" || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		got := sha256.Sum256([]byte(c.GetHeader(headerAPIKey)))
		if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
			log.Warn("Rejected request with invalid API key", "path", c.Request.URL.Path, "remote", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "invalid or missing API key", Code: "UNAUTHORIZED"})
			return
		}
		c.Next()
	}
}

func rateLimit(l *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{Error: "too many requests", Code: "RATE_LIMITED"})
			return
		}
		c.Next()
	}
}
