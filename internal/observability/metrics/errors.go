package metrics

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// errorType maps an error to a low-cardinality label. gRPC errors from the
// cloud clients keep their status code name.
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return strings.ToLower(st.Code().String())
	}
	return "other"
}
