package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"catalog/internal/auth"
	"catalog/internal/metrics"
)

const (
	HeaderRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
	ctxUserID       = "user_id"
)

// RequestID propagates an incoming X-Request-ID or mints a uuid.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// AccessLog writes one line per request and records HTTP metrics.
func AccessLog(log *zap.Logger, m metrics.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		d := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()

		metrics.RecordHTTP(m, route, status, d)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", d),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(ctxRequestID)),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// RateLimiter is a fixed-window per-client counter kept in redis.
type RateLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewRateLimiter allows limit requests per window per client IP.
func NewRateLimiter(rdb redis.Cmdable, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{rdb: rdb, limit: int64(limit), window: window, log: log, now: time.Now}
}

// Limit rejects requests over the limit with 429. Redis errors let the
// request through.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		slot := rl.now().UnixNano() / int64(rl.window)
		key := fmt.Sprintf("rate_limit:%s:%d", c.ClientIP(), slot)

		count, err := rl.rdb.Incr(c, key).Result()
		if err != nil {
			rl.log.Warn("rate limiter unavailable; allowing request", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.rdb.Expire(c, key, rl.window).Err(); err != nil {
				rl.log.Warn("rate limiter expire failed", zap.String("key", key), zap.Error(err))
			}
		}

		if count > rl.limit {
			retry := int(rl.window.Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			abort(c, http.StatusTooManyRequests, "Too many requests")
			return
		}
		c.Next()
	}
}

// RequireUser validates the Bearer token and stores the user id.
func RequireUser(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, tok, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tok) == "" {
			unauthorized(c, "Not authenticated")
			return
		}

		id, err := tokens.Validate(strings.TrimSpace(tok))
		if err != nil {
			msg := "Could not validate credentials"
			if errors.Is(err, auth.ErrTokenExpired) {
				msg = "Token has expired"
			}
			unauthorized(c, msg)
			return
		}
		c.Set(ctxUserID, id)
		c.Next()
	}
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	abort(c, http.StatusUnauthorized, msg)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}
