package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"roomsync/internal/service"
	apperrors "roomsync/pkg/errors"
	"roomsync/pkg/logger"
)

func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		apiErr := apperrors.ToAPIError(err)

		if apiErr.Code >= 500 {
			log.Error("Request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "error", err)
		}

		// конфликт звонка возвращает текущий звонок, чтобы клиент мог присоединиться
		var callConflict *service.CallConflictError
		if errors.As(err, &callConflict) {
			c.JSON(apiErr.Code, gin.H{"error": apiErr.Message, "call": callConflict.Call})
			return
		}

		c.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
	}
}
