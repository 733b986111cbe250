// Kunhua Huang 2026

package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/ratelimiter"
)

var (
	ErrObjectNotExist    = errors.New("object does not exist")
	ErrFacetNotExist     = errors.New("facet does not exist")
	ErrOperationNotExist = errors.New("operation does not exist")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemote            = errors.New("remote error")
)

// RemoteError is a failure reported by the peer in a reply.
type RemoteError struct {
	Remote *protocol.Error
	kind   error
}

func (e *RemoteError) Unwrap() error {
	return e.kind
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%v: %s", e.kind, e.Remote.Error())
}

// MapError turns a reply's error body into a *RemoteError whose Unwrap
// yields a sentinel callers can test with errors.Is.
func MapError(err *protocol.Error) error {
	if err == nil || err.Code == protocol.ErrorCodeOK {
		return nil
	}

	var kind error
	switch err.Code {
	case protocol.ErrorCodeObjectNotExist, protocol.ErrorCodeNotFound:
		kind = ErrObjectNotExist
	case protocol.ErrorCodeFacetNotExist:
		kind = ErrFacetNotExist
	case protocol.ErrorCodeOperationNotExist:
		kind = ErrOperationNotExist
	case protocol.ErrorCodeInvalidArgument:
		kind = ErrInvalidArgument
	case protocol.ErrorCodeResourceExhausted:
		kind = ratelimiter.ErrRateLimitExceeded
	case protocol.ErrorCodeUnavailable:
		kind = ErrRemoteUnavailable
	case protocol.ErrorCodeDeadlineExceeded:
		kind = context.DeadlineExceeded
	case protocol.ErrorCodeCanceled:
		kind = context.Canceled
	default:
		kind = ErrRemote
	}
	return &RemoteError{Remote: err, kind: kind}
}
