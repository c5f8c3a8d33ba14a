package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "orvit/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace accepts upstream request and trace ids, filling in whichever is
// missing, and echoes both on the response.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := appctx.NewTraceContext()
		if v := c.GetHeader(HeaderRequestID); v != "" {
			t.RequestID = v
		}
		if v := c.GetHeader(HeaderTraceID); v != "" {
			t.TraceID = v
		}
		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), t))

		c.Set("request_id", t.RequestID)
		c.Header(HeaderRequestID, t.RequestID)
		c.Header(HeaderTraceID, t.TraceID)
		c.Next()
	}
}
