// Package handler adapts HTTP requests to the document service.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/docservice/internal/domain/document"
	"github.com/erp/docservice/internal/domain/shared"
	"github.com/erp/docservice/internal/infrastructure/logger"
	"github.com/erp/docservice/internal/infrastructure/telemetry"
	"github.com/erp/docservice/internal/interfaces/http/dto"
	"github.com/erp/docservice/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// BindJSON decodes the request body into obj and answers the request itself
// when that fails.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size")
	case middleware.ValidationDetails(err) != nil:
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Request validation failed",
			middleware.GetRequestID(c),
			middleware.ValidationDetails(err),
		))
	default:
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
	}
	return false
}

// HandleError maps an error to a response. Classified storage and delivery
// errors keep their message, failed stage and unprocessed paths; anything
// unclassified becomes a generic 500. Failures that reach the 500 range carry
// the trace id so they can be found in the tracing backend.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID := middleware.GetRequestID(c)
	log := logger.GetGinLogger(c)

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	if kind := document.KindOf(err); kind != "" {
		code := dto.CodeForKind(kind)
		status := dto.GetHTTPStatus(code)
		resp := dto.NewErrorResponseWithRequestID(code, err.Error(), requestID)
		if status >= http.StatusInternalServerError {
			resp.Error.TraceID = telemetry.GetTraceID(c.Request.Context())
		}

		var stageErr *document.StageError
		if errors.As(err, &stageErr) {
			resp.Error.Stage = string(stageErr.Stage)
		}
		var docErr *document.Error
		if errors.As(err, &docErr) && len(docErr.Unprocessed) > 0 {
			resp.Error.Unprocessed = docErr.Unprocessed
		}

		if status >= http.StatusInternalServerError {
			log.Error("Request failed", zap.String("code", code), zap.Error(err))
		} else {
			log.Warn("Request rejected", zap.String("code", code), zap.Error(err))
		}
		c.JSON(status, resp)
		return
	}

	log.Error("Unexpected error", zap.Error(err))
	resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeInternal, "An unexpected error occurred", requestID)
	resp.Error.TraceID = telemetry.GetTraceID(c.Request.Context())
	c.JSON(http.StatusInternalServerError, resp)
}
