// Kunhua Huang 2026

package interceptor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

var log = rpclog.Logger("interceptor")

var ErrPanic = errors.New("panic recovered")

// Recovery turns a panic further down the chain into an error wrapping
// ErrPanic.
func Recovery() Interceptor {
	return func(ctx context.Context, req *protocol.Request, invoker Invoker) (resp *protocol.Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				service, method := target(req)
				log.Errorf("panic in %s.%s: %v\n%s", service, method, r, debug.Stack())
				err = fmt.Errorf("%w: %v", ErrPanic, r)
				resp = nil
			}
		}()

		return invoker(ctx, req)
	}
}
