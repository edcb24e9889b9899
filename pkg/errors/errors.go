// Package errors defines the error taxonomy shared by the forwarder, the
// stream manager, cascade and the HTTP adapter.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode enumerates the semantic error taxonomy.
type ErrorCode string

const (
	ErrCodeStreamNotFound  ErrorCode = "STREAM_NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeStreamBusy      ErrorCode = "STREAM_BUSY"
	ErrCodeAdmissionDenied ErrorCode = "ADMISSION_DENIED"
	ErrCodeNotSVC          ErrorCode = "NOT_SVC"
	ErrCodeInvalidSDP      ErrorCode = "INVALID_SDP"
	ErrCodeIceFailure      ErrorCode = "ICE_FAILURE"
	ErrCodeUpstreamError   ErrorCode = "UPSTREAM_ERROR"
	ErrCodeUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// httpStatus is the fixed HTTP status for each error code.
var httpStatus = map[ErrorCode]int{
	ErrCodeStreamNotFound:  http.StatusNotFound,
	ErrCodeSessionNotFound: http.StatusNotFound,
	ErrCodeStreamBusy:      http.StatusConflict,
	ErrCodeAdmissionDenied: http.StatusForbidden,
	ErrCodeNotSVC:          http.StatusBadRequest,
	ErrCodeInvalidSDP:      http.StatusBadRequest,
	ErrCodeIceFailure:      http.StatusBadGateway,
	ErrCodeUpstreamError:   http.StatusBadGateway,
	ErrCodeUpstreamTimeout: http.StatusBadGateway,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeInternal:        http.StatusInternalServerError,
}

// AppError is an application error carrying a stable code and its HTTP
// surface, with an optional wrapped cause.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic field, e.g. stream_id, session_id.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New builds an AppError for code, deriving HTTPStatus from the taxonomy.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus[code]}
}

// Wrap builds an AppError around an existing cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus[code], Cause: err}
}

func StreamNotFound(streamID string) *AppError {
	return New(ErrCodeStreamNotFound, fmt.Sprintf("stream %q not found", streamID)).WithContext("stream_id", streamID)
}

func SessionNotFound(sessionID string) *AppError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session %q not found", sessionID)).WithContext("session_id", sessionID)
}

func StreamBusy(streamID string) *AppError {
	return New(ErrCodeStreamBusy, "stream already has a publisher").WithContext("stream_id", streamID)
}

func AdmissionDenied(streamID string) *AppError {
	return New(ErrCodeAdmissionDenied, "admission limit reached").WithContext("stream_id", streamID)
}

func NotSVC(streamID string) *AppError {
	return New(ErrCodeNotSVC, "publisher is not simulcast/SVC").WithContext("stream_id", streamID)
}

func InvalidSDP(reason string) *AppError {
	return New(ErrCodeInvalidSDP, reason)
}

func IceFailure(reason string) *AppError {
	return New(ErrCodeIceFailure, reason)
}

func UpstreamError(cause error) *AppError {
	return Wrap(cause, ErrCodeUpstreamError, "cascade upstream request failed")
}

func UpstreamTimeout(cause error) *AppError {
	return Wrap(cause, ErrCodeUpstreamTimeout, "cascade upstream request timed out")
}

func Unauthorized(message string) *AppError {
	return New(ErrCodeUnauthorized, message)
}

func Internal(cause error) *AppError {
	return Wrap(cause, ErrCodeInternal, "internal error")
}

// IsAppError reports whether err is an *AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts the first *AppError in err's Unwrap chain, or nil.
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return GetAppError(u.Unwrap())
	}
	return nil
}
