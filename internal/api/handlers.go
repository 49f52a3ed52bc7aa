package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"go.uber.org/zap"
)

// noDataMessage is the only error detail clients see for collection and
// storage failures
const noDataMessage = "no data available"

// ErrorResponse is the body returned for failed requests
type ErrorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

func newErrorResponse(msg string) ErrorResponse {
	return ErrorResponse{
		Status:    "error",
		Error:     msg,
		Timestamp: time.Now().Format(sampler.TimestampLayout),
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLatest returns the newest persisted row(s) per category
func (s *Server) handleLatest(c *gin.Context) {
	latest, err := s.repo.Latest(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to read latest metrics",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, newErrorResponse(noDataMessage))
		return
	}

	if latest.Empty() {
		c.JSON(http.StatusOK, gin.H{"message": "No resources found"})
		return
	}
	c.JSON(http.StatusOK, latest)
}

// handleSnapshot collects a live snapshot without persisting it
func (s *Server) handleSnapshot(c *gin.Context) {
	snap, err := s.collector.Collect(c.Request.Context())
	if err != nil {
		s.respondCollectError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleStore collects a snapshot and persists it
func (s *Server) handleStore(c *gin.Context) {
	ctx := c.Request.Context()

	snap, err := s.collector.Collect(ctx)
	if err != nil {
		s.respondCollectError(c, err)
		return
	}

	if err := s.repo.Save(ctx, snap); err != nil {
		s.logger.Error("Failed to store snapshot",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, newErrorResponse(noDataMessage))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":    "success",
		"message":   "Metrics stored.",
		"timestamp": snap.FormattedTimestamp(),
	})
}

func (s *Server) respondCollectError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, sampler.ErrNoData) {
		status = http.StatusServiceUnavailable
	}
	s.logger.Warn("Snapshot collection failed",
		zap.String("request_id", c.GetString(ctxRequestID)),
		zap.Error(err))
	c.JSON(status, newErrorResponse(noDataMessage))
}
