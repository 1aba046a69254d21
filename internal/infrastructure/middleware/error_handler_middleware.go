package middleware

import (
	"net/http"

	apperrors "callpilot/pkg/errors"
	"callpilot/pkg/tracing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Domain errors are mapped to their HTTP status, anything else is a 500.
func ErrorHandler(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := apperrors.FromDomain(err)
		tracing.RecordError(c.Request.Context(), err)

		fields := []interface{}{
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", err,
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			logger.Errorw("request failed", fields...)
		} else {
			logger.Debugw("request rejected", fields...)
		}

		body := gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
		}
		if appErr.Cause != nil && appErr.HTTPStatus < http.StatusInternalServerError {
			body["details"] = appErr.Cause.Error()
		}
		c.JSON(appErr.HTTPStatus, body)
	}
}

// Recovery turns a panic into a 500 with the same body shape as ErrorHandler.
func Recovery(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic recovered",
					"panic", r,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(apperrors.ErrCodeInternal),
					"message": "internal error",
				})
			}
		}()

		c.Next()
	}
}
