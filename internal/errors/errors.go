// Package errors provides unified error handling with a shared error-code taxonomy.
// Codes classify failures as fatal invariant violations or retryable environmental conditions.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies the kind of failure.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeMedia
	CodeTransient
	CodeSchema
	CodeCoverage
	CodeValidation
	CodeIntervalOrder
	CodeAssembly
	CodePipelineFailed
	CodeTimeout
	CodeUnavailable
	CodeRateLimited
	CodeCancelled
	CodeConfigInvalid
	CodeNotFound
)

var codeNames = map[Code]string{
	CodeUnknown:        "UNKNOWN",
	CodeInternal:       "INTERNAL",
	CodeMedia:          "MEDIA",
	CodeTransient:      "TRANSIENT",
	CodeSchema:         "SCHEMA",
	CodeCoverage:       "COVERAGE",
	CodeValidation:     "VALIDATION",
	CodeIntervalOrder:  "INTERVAL_ORDER",
	CodeAssembly:       "ASSEMBLY",
	CodePipelineFailed: "PIPELINE_FAILED",
	CodeTimeout:        "TIMEOUT",
	CodeUnavailable:    "UNAVAILABLE",
	CodeRateLimited:    "RATE_LIMITED",
	CodeCancelled:      "CANCELLED",
	CodeConfigInvalid:  "CONFIG_INVALID",
	CodeNotFound:       "NOT_FOUND",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("CODE(%d)", int(c))
}

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:        codes.Unknown,
	CodeInternal:       codes.Internal,
	CodeMedia:          codes.InvalidArgument,
	CodeTransient:      codes.Unavailable,
	CodeSchema:         codes.DataLoss,
	CodeCoverage:       codes.FailedPrecondition,
	CodeValidation:     codes.InvalidArgument,
	CodeIntervalOrder:  codes.Internal,
	CodeAssembly:       codes.Internal,
	CodePipelineFailed: codes.Aborted,
	CodeTimeout:        codes.DeadlineExceeded,
	CodeUnavailable:    codes.Unavailable,
	CodeRateLimited:    codes.ResourceExhausted,
	CodeCancelled:      codes.Canceled,
	CodeConfigInvalid:  codes.InvalidArgument,
	CodeNotFound:       codes.NotFound,
}

// AppError is the base error type with structured error code and metadata.
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

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status carrying the error text.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), e.Error())
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
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

// FromGRPCError converts a gRPC error into an AppError.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message(), Cause: err}
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeValidation
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable:
		return CodeUnavailable
	case codes.DeadlineExceeded:
		return CodeTimeout
	case codes.Canceled:
		return CodeCancelled
	case codes.Internal:
		return CodeInternal
	case codes.ResourceExhausted:
		return CodeRateLimited
	case codes.DataLoss:
		return CodeSchema
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain, or CodeUnknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code anywhere in its chain.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	for err != nil {
		if !stderrors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// IsRetryable returns true if the error is eligible for the retry budget.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeTransient, CodeSchema, CodeTimeout, CodeUnavailable, CodeRateLimited:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err signals a logic defect or unrecoverable input.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeMedia, CodeValidation, CodeIntervalOrder, CodeAssembly, CodeConfigInvalid:
		return true
	default:
		return false
	}
}

// Is and As re-export the standard helpers so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
