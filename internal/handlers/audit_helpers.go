package handlers

import (
	"github.com/gin-gonic/gin"

	"chat-sync/internal/observability"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// RequestID tags every request and response with a request id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-Id", requestIDFromContext(c))
		c.Next()
	}
}
