// Package apperr provides structured errors with a code taxonomy shared
// across the reading pipeline and its remote collaborators.
package apperr

import "fmt"

// Code identifies an error category.
type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInternal          Code = "INTERNAL"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeTimeout           Code = "TIMEOUT"
	CodeCancelled         Code = "CANCELLED"
	CodeCaptureFailed     Code = "CAPTURE_FAILED"
	CodeCameraUnavailable Code = "CAMERA_UNAVAILABLE"
	CodeRecognitionFailed Code = "RECOGNITION_FAILED"
	CodeAnalysisFailed    Code = "ANALYSIS_FAILED"
	CodeSynthesisFailed   Code = "SYNTHESIS_FAILED"
	CodeAudioOutputFailed Code = "AUDIO_OUTPUT_FAILED"
	CodeInferenceDown     Code = "INFERENCE_UNAVAILABLE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeConfigInvalid     Code = "CONFIG_INVALID"
)

// AppError is the base error type with structured code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// New creates an AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates an AppError with a formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with a formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// IsCode checks whether err is an AppError with the given code.
func IsCode(err error, code Code) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable reports whether the error is worth retrying at the
// transport level. Scan attempts are never retried regardless; this
// only governs one-time warm-up against the inference service.
func IsRetryable(err error) bool {
	appErr, ok := err.(*AppError)
	if !ok {
		return false
	}
	switch appErr.Code {
	case CodeInferenceDown, CodeTimeout, CodeRateLimited:
		return true
	default:
		return false
	}
}
