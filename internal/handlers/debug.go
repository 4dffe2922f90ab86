package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.NoticeEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.POST("/debug/notice-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "notice emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), models.Notice{
			Kind:      models.NoticeState,
			At:        time.Now().UTC(),
			Text:      "notice test",
			RequestID: requestIDFromContext(c),
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
