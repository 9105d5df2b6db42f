package common

import (
	"errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is reported in gRPC ErrorInfo details.
const ErrorDomain = "harvestor"

// Stable error codes carried by AppError.
const (
	CodeUnsupportedInput  = "UNSUPPORTED_INPUT"
	CodeUnreadableInput   = "UNREADABLE_INPUT"
	CodeAPICall           = "API_CALL_FAILED"
	CodeCostLimitExceeded = "COST_LIMIT_EXCEEDED"
	CodeResponseParse     = "RESPONSE_PARSE_FAILED"
	CodeConfig            = "CONFIG_ERROR"
	CodeStore             = "STORE_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError and status.Code understand AppError.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(grpcCode(e), e.Message)
	info := &errdetails.ErrorInfo{
		Reason: e.Code,
		Domain: ErrorDomain,
	}
	if e.Cause != nil {
		info.Metadata = map[string]string{"cause": e.Cause.Error()}
	}
	if withDetails, err := st.WithDetails(info); err == nil {
		return withDetails
	}
	return st
}

// Error kinds surfaced to callers. Match with errors.Is.
var (
	ErrUnsupportedInput  = errors.New("unsupported input type")
	ErrUnreadableInput   = errors.New("unreadable input")
	ErrAPICall           = errors.New("api call failed")
	ErrCostLimitExceeded = errors.New("cost limit exceeded")
	ErrResponseParse     = errors.New("response parse failed")
)

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UnsupportedInputf builds an UNSUPPORTED_INPUT error.
func UnsupportedInputf(format string, args ...any) error {
	return NewAppError(CodeUnsupportedInput, fmt.Sprintf(format, args...), ErrUnsupportedInput)
}

// UnreadableInput builds an UNREADABLE_INPUT error around the underlying read failure.
func UnreadableInput(message string, cause error) error {
	if cause == nil {
		return NewAppError(CodeUnreadableInput, message, ErrUnreadableInput)
	}
	return NewAppError(CodeUnreadableInput, message, fmt.Errorf("%w: %w", ErrUnreadableInput, cause))
}

// APICallError builds an API_CALL_FAILED error.
func APICallError(message string, cause error) error {
	if cause == nil {
		return NewAppError(CodeAPICall, message, ErrAPICall)
	}
	return NewAppError(CodeAPICall, message, fmt.Errorf("%w: %w", ErrAPICall, cause))
}

// ResponseParseError builds a RESPONSE_PARSE_FAILED error.
func ResponseParseError(message string, cause error) error {
	if cause == nil {
		return NewAppError(CodeResponseParse, message, ErrResponseParse)
	}
	return NewAppError(CodeResponseParse, message, fmt.Errorf("%w: %w", ErrResponseParse, cause))
}

// KindOf returns the stable code of the error kind err belongs to, or "" for nil.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedInput):
		return CodeUnsupportedInput
	case errors.Is(err, ErrUnreadableInput):
		return CodeUnreadableInput
	case errors.Is(err, ErrCostLimitExceeded):
		return CodeCostLimitExceeded
	case errors.Is(err, ErrAPICall):
		return CodeAPICall
	case errors.Is(err, ErrResponseParse):
		return CodeResponseParse
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "INTERNAL"
}

func grpcCode(e *AppError) codes.Code {
	switch {
	case errors.Is(e, ErrUnsupportedInput), errors.Is(e, ErrInvalidInput):
		return codes.InvalidArgument
	case errors.Is(e, ErrUnreadableInput):
		return codes.FailedPrecondition
	case errors.Is(e, ErrCostLimitExceeded):
		return codes.ResourceExhausted
	case errors.Is(e, ErrAPICall):
		return codes.Unavailable
	case errors.Is(e, ErrResponseParse):
		return codes.DataLoss
	case errors.Is(e, ErrNotFound):
		return codes.NotFound
	}
	return codes.Internal
}
