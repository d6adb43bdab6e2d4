package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNetwork indicates no response was received from the backend (including timeouts).
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeSessionExpired indicates the credential was rejected and could not be recovered.
	ErrCodeSessionExpired ErrorCode = "session_expired"
	// ErrCodeForgeryToken indicates the forgery token was rejected even after one refresh and replay.
	ErrCodeForgeryToken ErrorCode = "forgery_token"
	// ErrCodePermissionDenied indicates the caller lacks permission for the action.
	ErrCodePermissionDenied ErrorCode = "permission_denied"
	// ErrCodeRateLimited indicates the backend is throttling the caller.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodePayloadTooLarge indicates the request body exceeded the backend limit.
	ErrCodePayloadTooLarge ErrorCode = "payload_too_large"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeServer indicates a backend failure (5xx).
	ErrCodeServer ErrorCode = "server"
	// ErrCodeProtocol indicates a trusted endpoint answered with an unexpected shape.
	ErrCodeProtocol ErrorCode = "protocol"
	// ErrCodeHTTPStatus indicates an unclassified non-success HTTP status.
	ErrCodeHTTPStatus ErrorCode = "http_status"
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeInternal indicates an internal error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// User-facing messages for the request-layer taxonomy.
const (
	MsgNetwork         = "Unable to connect to the server. Please check your connection."
	MsgSessionExpired  = "Your session has expired. Please log in again."
	MsgForgeryToken    = "Security token error. Please reload the page and try again."
	MsgPermission      = "You do not have permission to perform this action."
	MsgRateLimited     = "Too many requests. Please wait a moment and try again."
	MsgPayloadTooLarge = "The request is too large."
	MsgValidation      = "Validation failed. Please check your input."
	MsgServer          = "Server error. Please try again later."
	MsgCanceled        = "Request was canceled."
)

// FieldError is a single field-level validation failure reported by the backend.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// Status is the HTTP status that produced the error, zero when no response was received
	Status int
	// CorrelationID is the backend-supplied request reference (server errors)
	CorrelationID string
	// FieldErrors holds field-level detail for validation errors
	FieldErrors []FieldError
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Network creates a Network error wrapping the transport failure.
func Network(cause error) *AppError {
	return &AppError{Code: ErrCodeNetwork, Message: MsgNetwork, Cause: cause}
}

// Canceled creates a Canceled error for a call abandoned by its caller.
func Canceled(cause error) *AppError {
	return &AppError{Code: ErrCodeCanceled, Message: MsgCanceled, Cause: cause}
}

// SessionExpired creates a SessionExpired error for the given status.
func SessionExpired(status int) *AppError {
	return &AppError{Code: ErrCodeSessionExpired, Message: MsgSessionExpired, Status: status}
}

// ForgeryToken creates a ForgeryToken error.
func ForgeryToken(status int, cause error) *AppError {
	return &AppError{Code: ErrCodeForgeryToken, Message: MsgForgeryToken, Status: status, Cause: cause}
}

// PermissionDenied creates a PermissionDenied error.
func PermissionDenied(status int) *AppError {
	return &AppError{Code: ErrCodePermissionDenied, Message: MsgPermission, Status: status}
}

// RateLimited creates a RateLimited error.
func RateLimited(status int) *AppError {
	return &AppError{Code: ErrCodeRateLimited, Message: MsgRateLimited, Status: status}
}

// PayloadTooLarge creates a PayloadTooLarge error.
func PayloadTooLarge(status int) *AppError {
	return &AppError{Code: ErrCodePayloadTooLarge, Message: MsgPayloadTooLarge, Status: status}
}

// ValidationFields creates a Validation error whose message concatenates the field messages.
// Without field detail the generic validation message is used.
func ValidationFields(status int, fields []FieldError) *AppError {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		if m := strings.TrimSpace(f.Message); m != "" {
			msgs = append(msgs, m)
		}
	}
	msg := MsgValidation
	if len(msgs) > 0 {
		msg = strings.Join(msgs, ", ")
	}
	return &AppError{Code: ErrCodeValidation, Message: msg, Status: status, FieldErrors: fields}
}

// Server creates a Server error that mentions the correlation id when one is known.
func Server(status int, correlationID string) *AppError {
	msg := MsgServer
	if correlationID != "" {
		msg = fmt.Sprintf("%s (ref: %s)", MsgServer, correlationID)
	}
	return &AppError{Code: ErrCodeServer, Message: msg, Status: status, CorrelationID: correlationID}
}

// Protocol creates a Protocol error.
func Protocol(message string) *AppError {
	return &AppError{Code: ErrCodeProtocol, Message: message}
}

// Protocolf creates a Protocol error with formatted message.
func Protocolf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeProtocol, Message: fmt.Sprintf(format, args...)}
}

// HTTPStatus creates an error for an unclassified HTTP status.
func HTTPStatus(status int, message string) *AppError {
	return &AppError{Code: ErrCodeHTTPStatus, Message: message, Status: status}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNetwork checks if an error is a Network error.
func IsNetwork(err error) bool { return isCode(err, ErrCodeNetwork) }

// IsSessionExpired checks if an error is a SessionExpired error.
func IsSessionExpired(err error) bool { return isCode(err, ErrCodeSessionExpired) }

// IsForgeryToken checks if an error is a ForgeryToken error.
func IsForgeryToken(err error) bool { return isCode(err, ErrCodeForgeryToken) }

// IsPermissionDenied checks if an error is a PermissionDenied error.
func IsPermissionDenied(err error) bool { return isCode(err, ErrCodePermissionDenied) }

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool { return isCode(err, ErrCodeRateLimited) }

// IsPayloadTooLarge checks if an error is a PayloadTooLarge error.
func IsPayloadTooLarge(err error) bool { return isCode(err, ErrCodePayloadTooLarge) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsServer checks if an error is a Server error.
func IsServer(err error) bool { return isCode(err, ErrCodeServer) }

// IsProtocol checks if an error is a Protocol error.
func IsProtocol(err error) bool { return isCode(err, ErrCodeProtocol) }

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// UserMessage returns the message suitable for display, without the wrapped cause.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
