package middleware

import (
	"net/http"
	"time"

	"dm-chat-service/internal/models"
	"dm-chat-service/pkg/logger"
	"dm-chat-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// LogApi writes one access log line per request
func LogApi(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"status", c.Writer.Status(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"clientIP", c.ClientIP(),
			"latency", time.Since(start),
			"userAgent", c.Request.UserAgent(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate).String(); errs != "" {
			kv = append(kv, "errors", errs)
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Error("HTTP request", kv...)
		case c.Writer.Status() >= http.StatusBadRequest:
			log.Warn("HTTP request", kv...)
		default:
			log.Info("HTTP request", kv...)
		}
	}
}

// Recovery turns a panic into a JSON 500
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("Panic recovered", "path", c.Request.URL.Path, "panic", recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Code:    response.ErrCodeInternal,
			Message: response.Msg(response.ErrCodeInternal),
		})
	})
}
