// Package errors defines custom error types and error handling utilities for the fincore risk service.
// This package provides structured error types that map to engine error kinds and HTTP status codes.
package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/turtacn/fincore-risk/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// RiskError represents a structured error with additional metadata
type RiskError interface {
	error

	// Code returns the machine-readable error code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) RiskError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) RiskError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode {
	return e.code
}

func (e *baseError) HTTPStatus() int {
	return e.httpStatus
}

func (e *baseError) Description() string {
	return e.description
}

func (e *baseError) Unwrap() error {
	return e.cause
}

func (e *baseError) WithCause(cause error) RiskError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) RiskError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new RiskError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) RiskError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Engine Error Constructors
// ================================================================================

// ErrInvalidIndicator reports a malformed or missing raw indicator for one dimension.
// The engine recovers from it with the dimension's fallback score.
func ErrInvalidIndicator(dimension constants.Dimension, indicator string, reason string) RiskError {
	return NewError(
		constants.ErrCodeInvalidIndicator,
		http.StatusUnprocessableEntity,
		"A raw risk indicator is missing, not a number, or outside its valid range.",
		fmt.Sprintf("invalid indicator %s/%s: %s", dimension, indicator, reason),
	).WithMetadata("dimension", string(dimension)).
		WithMetadata("indicator", indicator).
		WithMetadata("reason", reason)
}

// ErrMissingDimension reports that the aggregator could not find a dimension score.
func ErrMissingDimension(entityID string, dimension constants.Dimension) RiskError {
	return NewError(
		constants.ErrCodeMissingDimension,
		http.StatusUnprocessableEntity,
		"A required risk dimension score is absent.",
		fmt.Sprintf("entity %s is missing dimension %s", entityID, dimension),
	).WithMetadata("entity_id", entityID).
		WithMetadata("dimension", string(dimension))
}

// ErrInvalidEntityRecord reports a structurally invalid entity record. It aborts the pass.
func ErrInvalidEntityRecord(index int, reason string) RiskError {
	return NewError(
		constants.ErrCodeInvalidEntityRecord,
		http.StatusBadRequest,
		"An entity record lacks a usable identifier.",
		fmt.Sprintf("entity record %d is invalid: %s", index, reason),
	).WithMetadata("index", index).
		WithMetadata("reason", reason)
}

// ErrInvalidConfig reports an inconsistent engine configuration
func ErrInvalidConfig(reason string) RiskError {
	return NewError(
		constants.ErrCodeInvalidConfig,
		http.StatusInternalServerError,
		"The risk engine configuration is invalid.",
		fmt.Sprintf("invalid configuration: %s", reason),
	).WithMetadata("reason", reason)
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) RiskError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or is otherwise malformed.",
		message,
	)
}

// ErrNotFound creates a not_found error for the given resource
func ErrNotFound(resource string, id string) RiskError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested resource was not found.",
		fmt.Sprintf("%s not found: %s", resource, id),
	).WithMetadata("resource", resource).
		WithMetadata("id", id)
}

// ErrServerError creates a server_error error
func ErrServerError(message string) RiskError {
	return NewError(
		constants.ErrCodeServerError,
		http.StatusInternalServerError,
		"The service encountered an unexpected condition.",
		message,
	)
}

// ErrRateLimited creates a rate_limited error
func ErrRateLimited(retryAfter time.Duration) RiskError {
	return NewError(
		constants.ErrCodeRateLimited,
		http.StatusTooManyRequests,
		"Too many requests.",
		fmt.Sprintf("rate limit exceeded, retry after %s", retryAfter.Round(time.Second)),
	).WithMetadata("retry_after_seconds", int(math.Ceil(retryAfter.Seconds())))
}

// ErrConflict creates a conflict error
func ErrConflict(message string) RiskError {
	return NewError(
		constants.ErrCodeConflict,
		http.StatusConflict,
		"The request conflicts with an earlier request.",
		message,
	)
}

// ================================================================================
// Error Validation Utilities
// ================================================================================

// AsRiskError finds the first RiskError in err's chain
func AsRiskError(err error) (RiskError, bool) {
	var riskErr RiskError
	if stderrors.As(err, &riskErr) {
		return riskErr, true
	}
	return nil, false
}

// IsCode reports whether err's chain contains a RiskError with the given code
func IsCode(err error, code constants.ErrorCode) bool {
	riskErr, ok := AsRiskError(err)
	return ok && riskErr.Code() == code
}

// WrapError wraps a generic error into a RiskError
func WrapError(err error, code constants.ErrorCode, message string) RiskError {
	var httpStatus int

	switch code {
	case constants.ErrCodeInvalidRequest, constants.ErrCodeInvalidEntityRecord:
		httpStatus = http.StatusBadRequest
	case constants.ErrCodeInvalidIndicator, constants.ErrCodeMissingDimension:
		httpStatus = http.StatusUnprocessableEntity
	case constants.ErrCodeNotFound:
		httpStatus = http.StatusNotFound
	case constants.ErrCodeConflict:
		httpStatus = http.StatusConflict
	case constants.ErrCodeRateLimited:
		httpStatus = http.StatusTooManyRequests
	default:
		httpStatus = http.StatusInternalServerError
	}

	return NewError(code, httpStatus, err.Error(), message).WithCause(err)
}

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Message          string                 `json:"message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts a RiskError to an ErrorResponse
func ToErrorResponse(err RiskError) *ErrorResponse {
	return &ErrorResponse{
		Error:            string(err.Code()),
		ErrorDescription: err.Description(),
		Message:          err.Error(),
		Metadata:         err.Metadata(),
	}
}

// ToGenericErrorResponse converts any error to an ErrorResponse and its HTTP status
func ToGenericErrorResponse(err error) (int, *ErrorResponse) {
	if riskErr, ok := AsRiskError(err); ok {
		return riskErr.HTTPStatus(), ToErrorResponse(riskErr)
	}

	return http.StatusInternalServerError, &ErrorResponse{
		Error:            string(constants.ErrCodeServerError),
		ErrorDescription: "An unexpected error occurred",
	}
}
