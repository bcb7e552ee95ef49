package dto

import (
	"net/http"

	"github.com/farmerp/backend/internal/domain/integrity"
)

// General error codes
const (
	ErrCodeInternal = "ERR_INTERNAL"
	ErrCodeTimeout  = "ERR_TIMEOUT"
)

// Input error codes
const (
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
)

// Integrity error codes. Each maps one integrity.ErrorKind.
const (
	ErrCodeConversion             = "ERR_CONVERSION"
	ErrCodeConstraintViolation    = "ERR_CONSTRAINT_VIOLATION"
	ErrCodeConcurrentModification = "ERR_CONCURRENT_MODIFICATION"
	ErrCodeNotRestorable          = "ERR_NOT_RESTORABLE"
	ErrCodeDetection              = "ERR_DETECTION"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,
	ErrCodeTimeout:  http.StatusServiceUnavailable,

	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeNotFound: http.StatusNotFound,
	ErrCodeConflict: http.StatusConflict,

	ErrCodeConversion:             http.StatusUnprocessableEntity,
	ErrCodeConstraintViolation:    http.StatusUnprocessableEntity,
	ErrCodeConcurrentModification: http.StatusConflict,
	ErrCodeNotRestorable:          http.StatusUnprocessableEntity,
	ErrCodeDetection:              http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

var integrityErrorCodes = map[integrity.ErrorKind]string{
	integrity.ErrKindConversion:             ErrCodeConversion,
	integrity.ErrKindConstraintViolation:    ErrCodeConstraintViolation,
	integrity.ErrKindConcurrentModification: ErrCodeConcurrentModification,
	integrity.ErrKindNotRestorable:          ErrCodeNotRestorable,
	integrity.ErrKindDetection:              ErrCodeDetection,
	integrity.ErrKindInternal:               ErrCodeInternal,
}

// ErrorCodeForKind returns the API error code of an integrity error kind
func ErrorCodeForKind(kind integrity.ErrorKind) string {
	if code, ok := integrityErrorCodes[kind]; ok {
		return code
	}
	return ErrCodeInternal
}

// LegacyErrorCodeMapping maps domain error codes to API codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_FINDING_KIND": ErrCodeInvalidInput,
	"INVALID_MODEL_TYPE":   ErrCodeInvalidInput,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrentModification,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"INTERNAL_ERROR":       ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
