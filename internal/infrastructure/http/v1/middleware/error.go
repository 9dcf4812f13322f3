package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ncfpos/internal/core/apperror"
	"ncfpos/pkg/logger"
)

// ErrorHandler renders the last error attached with c.Error as
// {code, message, details}. Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

// errorBody builds the response for err and returns it with its status.
func errorBody(c *gin.Context, err error) (int, gin.H) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request failed",
				"code", appErr.Code,
				"cause", appErr.Err)
		}
		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		return appErr.HTTPStatus, body
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	return http.StatusInternalServerError, gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": gin.H{"request_id": c.GetString(ctxKeyRequestID)},
	}
}

func writeError(c *gin.Context, err error) {
	status, body := errorBody(c, err)
	c.AbortWithStatusJSON(status, body)
}
