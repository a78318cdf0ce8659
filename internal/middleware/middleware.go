// Package middleware provides Gin middleware functions for the routing gateway.
// It includes request logging, rate limiting, API key authentication, and
// caller identification.
package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Soulfra/soulfra.github.io-sub005/pkg/cache"
)

// LoggingMiddleware returns a Gin middleware handler that logs request and
// response metadata including method, path, status code, latency, and client IP.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()
		clientIP := c.ClientIP()
		method := c.Request.Method
		bodySize := c.Writer.Size()

		if query != "" {
			path = path + "?" + query
		}

		switch {
		case statusCode >= 500:
			log.Printf("[ERROR] %s %s | %d | %v | %s | %d bytes | errors: %s",
				method, path, statusCode, latency, clientIP, bodySize, c.Errors.ByType(gin.ErrorTypePrivate).String())
		case statusCode >= 400:
			log.Printf("[WARN]  %s %s | %d | %v | %s | %d bytes",
				method, path, statusCode, latency, clientIP, bodySize)
		default:
			log.Printf("[INFO]  %s %s | %d | %v | %s | %d bytes",
				method, path, statusCode, latency, clientIP, bodySize)
		}
	}
}

// RateLimitMiddleware returns a Gin middleware handler that enforces per-caller
// rate limiting using Redis. It allows maxRequests within the specified window.
// On Redis errors the request is allowed through; rate limiting is a traffic
// shaper, not a correctness gate.
func RateLimitMiddleware(c *cache.Cache, maxRequests int64, window time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		key := ctx.GetHeader("X-Caller-ID")
		if key == "" {
			key = ctx.ClientIP()
		}

		// Use only the first 32 chars of the key for bounded Redis keys
		if len(key) > 32 {
			key = key[:32]
		}

		allowed, err := c.RateLimitCheck(ctx.Request.Context(), key, maxRequests, window)
		if err != nil {
			log.Printf("middleware: rate limit check error: %v", err)
			ctx.Next()
			return
		}

		if !allowed {
			ctx.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests. Please slow down.",
			})
			ctx.Abort()
			return
		}

		ctx.Next()
	}
}

// extractKey pulls an API key from the X-API-Key header or an
// Authorization: Bearer header.
func extractKey(c *gin.Context) string {
	apiKey := c.GetHeader("X-API-Key")
	if apiKey == "" {
		auth := c.GetHeader("Authorization")
		if strings.HasPrefix(auth, "Bearer ") {
			apiKey = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	return apiKey
}

// APIKeyAuth returns a Gin middleware handler that validates the request's
// API key against a single expected key using a constant-time comparison.
// An empty expectedKey rejects everything; a route group must never fall
// open because an operator forgot to configure its key.
func APIKeyAuth(expectedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := extractKey(c)

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing API key. Provide X-API-Key header or Authorization: Bearer <key>.",
			})
			c.Abort()
			return
		}

		if expectedKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(expectedKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid API key.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// CallerID returns a Gin middleware handler that resolves the caller identity
// for trust lookups from the X-Caller-ID header. Requests without a caller
// identity are rejected; routing decisions depend on knowing who is asking.
func CallerID() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID := c.GetHeader("X-Caller-ID")
		if callerID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_caller_id",
				"message": "X-Caller-ID header is required.",
			})
			c.Abort()
			return
		}

		c.Set("caller_id", callerID)
		c.Next()
	}
}

// RecoveryMiddleware returns a Gin middleware that recovers from panics
// and returns a 500 error instead of crashing the server.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] recovered from panic: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{
					"error":   "internal_server_error",
					"message": "An unexpected error occurred.",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}
