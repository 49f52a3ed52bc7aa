package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-Id"
	ctxRequestID    = "request_id"
)

// requestIDMiddleware accepts a client UUID or generates one
func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(headerRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.New().String()
		}

		c.Set(ctxRequestID, requestID)
		c.Header(headerRequestID, requestID)
		c.Next()
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("Panic recovered in HTTP handler",
					zap.String("error", fmt.Sprintf("%v", rec)),
					zap.String("request_id", c.GetString(ctxRequestID)),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Stack("stack"))
				c.AbortWithStatusJSON(http.StatusInternalServerError, newErrorResponse("internal server error"))
			}
		}()
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("Request completed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

// rateLimitMiddleware guards the write endpoint, since each call triggers a
// full collection and a database transaction
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.storeLimiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, newErrorResponse("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
