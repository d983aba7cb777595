package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/docservice/internal/interfaces/http/dto"
)

// BodyLimit rejects requests announcing a body larger than maxBytes and caps
// streamed bodies at the same size. A non-positive limit disables it.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				GetRequestID(c),
			))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
