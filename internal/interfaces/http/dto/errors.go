package dto

import (
	"net/http"

	"github.com/erp/docservice/internal/domain/document"
)

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal         = "ERR_INTERNAL"
	ErrCodeValidation       = "ERR_VALIDATION"
	ErrCodeBadRequest       = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput     = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge  = "ERR_REQUEST_TOO_LARGE"
	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeNotFound         = "ERR_NOT_FOUND"
	ErrCodeInvalidLocator   = "ERR_INVALID_LOCATOR"
	ErrCodeUnsupportedMove  = "ERR_UNSUPPORTED_MOVE"
	ErrCodeBackendAuth      = "ERR_BACKEND_AUTH"
	ErrCodeUpload           = "ERR_UPLOAD"
	ErrCodeDownload         = "ERR_DOWNLOAD"
	ErrCodeMove             = "ERR_MOVE"
	ErrCodePrint            = "ERR_PRINT"
	ErrCodeEmail            = "ERR_EMAIL"
	ErrCodeRender           = "ERR_RENDER"
	ErrCodeTimeout          = "ERR_TIMEOUT"
	ErrCodeBackendNotActive = "ERR_BACKEND_NOT_ACTIVE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidLocator:  http.StatusBadRequest,
	ErrCodeUnsupportedMove: http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeNotFound:     http.StatusNotFound,

	// Downstream failures -> 502 Bad Gateway
	ErrCodeBackendAuth: http.StatusBadGateway,
	ErrCodeUpload:      http.StatusBadGateway,
	ErrCodeDownload:    http.StatusBadGateway,
	ErrCodeMove:        http.StatusBadGateway,
	ErrCodePrint:       http.StatusBadGateway,
	ErrCodeEmail:       http.StatusBadGateway,

	ErrCodeRender:           http.StatusInternalServerError,
	ErrCodeTimeout:          http.StatusGatewayTimeout,
	ErrCodeBackendNotActive: http.StatusServiceUnavailable,
}

// kindCodes maps classified storage and delivery failures to API codes
var kindCodes = map[document.ErrorKind]string{
	document.ErrKindAuth:             ErrCodeBackendAuth,
	document.ErrKindUpload:           ErrCodeUpload,
	document.ErrKindDownload:         ErrCodeDownload,
	document.ErrKindMove:             ErrCodeMove,
	document.ErrKindInvalidLocator:   ErrCodeInvalidLocator,
	document.ErrKindUnsupportedMove:  ErrCodeUnsupportedMove,
	document.ErrKindTimeout:          ErrCodeTimeout,
	document.ErrKindPrint:            ErrCodePrint,
	document.ErrKindEmail:            ErrCodeEmail,
	document.ErrKindRender:           ErrCodeRender,
	document.ErrKindInvalidInput:     ErrCodeInvalidInput,
	document.ErrKindBackendNotActive: ErrCodeBackendNotActive,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// CodeForKind returns the API code of a classified error, or ErrCodeInternal
func CodeForKind(kind document.ErrorKind) string {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return ErrCodeInternal
}

// LegacyErrorCodeMapping maps domain error codes to standardized codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":        ErrCodeNotFound,
	"INVALID_INPUT":    ErrCodeInvalidInput,
	"UNAUTHORIZED":     ErrCodeUnauthorized,
	"VALIDATION_ERROR": ErrCodeValidation,
	"BAD_REQUEST":      ErrCodeBadRequest,
	"INTERNAL_ERROR":   ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
