package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// LogsHandler relays frontend log entries into the service logger so popup
// and client-side failures land next to the backend's own logs.
type LogsHandler struct {
	logger *zap.Logger
}

// NewLogsHandler creates the frontend log sink.
func NewLogsHandler(logger *zap.Logger) *LogsHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &LogsHandler{logger: logger}
}

type logEntry struct {
	Timestamp string         `json:"timestamp" binding:"required"`
	Level     string         `json:"level" binding:"required"`
	Component string         `json:"component" binding:"required"`
	Action    string         `json:"action" binding:"required"`
	Details   map[string]any `json:"details"`
	Metadata  map[string]any `json:"metadata"`
}

// Store accepts a single frontend log entry.
func (h *LogsHandler) Store(c *gin.Context) {
	var entry logEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid log entry."})
		return
	}

	ts, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "timestamp must be RFC3339."})
		return
	}

	fields := []zap.Field{
		zap.String("source", "frontend"),
		zap.String("component", entry.Component),
		zap.String("action", entry.Action),
		zap.Time("client_time", ts),
		zap.Any("details", entry.Details),
		zap.Any("metadata", entry.Metadata),
	}

	switch strings.ToUpper(entry.Level) {
	case "ERROR":
		h.logger.Error("frontend_log", fields...)
	case "WARN":
		h.logger.Warn("frontend_log", fields...)
	case "DEBUG":
		h.logger.Debug("frontend_log", fields...)
	default:
		h.logger.Info("frontend_log", fields...)
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Log stored successfully"})
}
