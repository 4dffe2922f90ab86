package observability

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDFromRequest returns the caller's request id or a fresh one.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}
