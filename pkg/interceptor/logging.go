// Kunhua Huang 2026

package interceptor

import (
	"context"
	"time"

	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Logging logs every invocation at debug level and failures at error
// level. A nil logger logs to the "rpc" module.
func Logging(logger Logger) Interceptor {
	if logger == nil {
		logger = rpclog.Logger("rpc")
	}

	return func(ctx context.Context, req *protocol.Request, invoker Invoker) (*protocol.Response, error) {
		start := time.Now()
		service, method := target(req)
		logger.Debugf("→ %s %s.%s (request %d)", req.Identity, service, method, req.ID)

		resp, err := invoker(ctx, req)

		duration := time.Since(start)
		if err != nil {
			logger.Errorf("✗ %s %s.%s failed in %v: %v", req.Identity, service, method, duration, err)
		} else {
			logger.Debugf("✓ %s %s.%s done in %v", req.Identity, service, method, duration)
		}

		return resp, err
	}
}
