package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"lostfound-chat/internal/middleware"
	"lostfound-chat/internal/observability"
	"lostfound-chat/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(observability.RequestIDContextKey); id != "" {
		return id
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(observability.RequestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return &userID
	}
	return nil
}

// serverError logs err, emits an audit record and answers with status and message.
func serverError(c *gin.Context, logger *zap.Logger, audit *telemetry.AuditEmitter, status int, message string, err error) {
	requestID := requestIDFromContext(c)
	logger.Error(message,
		zap.String("request_id", requestID),
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	audit.Emit(c.Request.Context(), "ERROR", message+": "+err.Error(), requestID, userIDFromContext(c))
	c.JSON(status, gin.H{"error": message})
}
