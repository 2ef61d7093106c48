package resilience

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperr "github.com/GriffinCanCode/olfactory-vision/internal/errors"
)

// IsRetryable reports whether another attempt could succeed. Application errors decide by
// code; raw gRPC statuses by their transport code; anything else unclassified is treated as
// transient. Cancellation never is.
func IsRetryable(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var ae *apperr.AppError
	if errors.As(err, &ae) {
		return apperr.IsRetryable(err)
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}
	return true
}
