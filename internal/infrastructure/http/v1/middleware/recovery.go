// Package middleware provides the gin middleware chain of the HTTP API.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	"ncfpos/pkg/logger"
)

// Recovery turns a panic into an INTERNAL_ERROR response. The stack goes to
// the log only.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				"panic", rec,
				"path", c.Request.URL.Path,
				"stack", string(debug.Stack()))

			_ = c.Error(apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
				WithDetail("request_id", c.GetString(ctxKeyRequestID)))
			c.Abort()
			if !c.Writer.Written() {
				writeError(c, c.Errors.Last().Err)
			}
		}()
		c.Next()
	}
}
