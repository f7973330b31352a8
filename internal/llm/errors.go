package llm

import (
	"errors"
	"net/http"
	"time"

	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TobiSchelling/DailyDigest/internal/retry"
)

// IsTransient reports whether err is a rate-limit or server-side failure
// worth retrying. Every other error is permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return transientHTTP(se.Code)
	}

	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if code := ae.HTTPCode(); code > 0 {
			return transientHTTP(code)
		}
		return transientGRPC(ae.GRPCStatus().Code())
	}

	if st, ok := status.FromError(err); ok {
		return transientGRPC(st.Code())
	}
	return false
}

func transientHTTP(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func transientGRPC(code codes.Code) bool {
	switch code {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal:
		return true
	default:
		return false
	}
}

// DefaultPolicy retries transient model errors three times, starting at 1s.
func DefaultPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Retryable:  IsTransient,
	}
}
