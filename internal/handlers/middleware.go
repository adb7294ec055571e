package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-mpesa-stk-relay/internal/reconcile"
)

const requestIDHeader = "X-Request-Id"

// RequestID echoes X-Request-Id (or a fresh uuid) and carries it on the request
// context so scheduled poll jobs can be traced back to the call that made them.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(reconcile.WithCorrelationID(c.Request.Context(), id))
		c.Next()
	}
}
