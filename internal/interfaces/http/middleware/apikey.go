package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/interfaces/http/dto"
)

// APIKeyHeader is the header callers authenticate with
const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not match key. An empty key
// disables the check; configuration refuses that in production.
func APIKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}
		given := []byte(c.GetHeader(APIKeyHeader))
		if subtle.ConstantTimeCompare(given, expected) != 1 {
			logger.GetGinLogger(c).Warn("Rejected request with invalid API key",
				zap.Bool("header_present", len(given) > 0),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"Missing or invalid API key",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}
