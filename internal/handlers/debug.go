package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lostfound-chat/internal/telemetry"
)

// FeedStats reports open live feeds per kind.
type FeedStats interface {
	Stats() map[string]int
}

// DebugOptions carries what the debug endpoints inspect; nil fields disable
// the matching endpoint.
type DebugOptions struct {
	Audit         *telemetry.AuditEmitter
	Feeds         FeedStats
	PublisherMode string
}

// RegisterDebugRoutes mounts operator endpoints under /debug when enabled.
func RegisterDebugRoutes(router gin.IRouter, opts DebugOptions, enabled bool) {
	if !enabled {
		return
	}
	debug := router.Group("/debug")

	debug.GET("/audit-test", func(c *gin.Context) {
		if opts.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		opts.Audit.Emit(c.Request.Context(), "INFO", "debug audit emission", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/feeds", func(c *gin.Context) {
		if opts.Feeds == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed hub not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"feeds":     opts.Feeds.Stats(),
			"publisher": opts.PublisherMode,
		})
	})
}
