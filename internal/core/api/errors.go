package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/policyrouter/internal/core/policy"
	"github.com/solatis/policyrouter/internal/types"
)

// Error mapping shared by both transports.
// Auth errors are mapped in the auth package interceptor and middleware.
// Invalid events map to INVALID_ARGUMENT / 400.
// A missing policy set maps to UNAVAILABLE / 503.
// Context timeouts map to DEADLINE_EXCEEDED / 504.

// grpcError converts a service error to a gRPC status error.
func grpcError(err error) error {
	return status.Error(grpcCode(err), err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, types.ErrEventNotObject), errors.Is(err, types.ErrPayloadTooLarge):
		return codes.InvalidArgument
	case errors.Is(err, policy.ErrNotLoaded):
		return codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

// httpStatus maps a service error to an HTTP status code.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrEventNotObject):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, policy.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
