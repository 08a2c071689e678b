package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lakany/clinic-api/internal/handler"
)

// ErrorHandler writes the last recorded error as the response envelope. When
// verbose is false internal errors carry no detail.
func ErrorHandler(verbose bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		lastErr := c.Errors.Last().Err
		status := handler.StatusOf(lastErr)

		l := zerolog.Ctx(c.Request.Context())
		event := l.Debug()
		if status >= http.StatusInternalServerError {
			event = l.Error()
		}
		event.Err(lastErr).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("Request error")

		if c.Writer.Written() {
			return
		}
		c.JSON(status, handler.NewErrorResponse(handler.MessageOf(lastErr, verbose)))
	}
}
