// Package middleware provides the gin middleware chain of the GRNI API.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"orvit/internal/core/apperror"
	"orvit/pkg/logger"
)

// Recovery converts a handler panic into an INTERNAL_ERROR response.
// The stack goes to the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", rec,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)
			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
			// ErrorHandler sits below us and was unwound by the panic.
			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError, gin.H{
					"code":    apperror.CodeInternal,
					"message": "Internal server error",
					"details": map[string]any{"request_id": c.GetString("request_id")},
				})
			}
			c.Abort()
		}()
		c.Next()
	}
}
