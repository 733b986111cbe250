// Kunhua Huang 2026

package interceptor

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

var (
	rpcCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_client_calls_total",
			Help: "Total number of RPC invocations",
		},
		[]string{"service", "method", "mode", "status"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rpc_client_duration_seconds",
			Help:    "Duration of RPC invocations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method"},
	)
)

func init() {
	prometheus.MustRegister(rpcCallsTotal)
	prometheus.MustRegister(rpcDuration)
}

// callStatus buckets an invocation outcome. Binding failures are kept apart
// from remote ones so a dead endpoint shows up without log digging.
func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, handler.ErrConnectionUnavailable):
		return "unavailable"
	case errors.Is(err, handler.ErrResolutionFailed):
		return "unresolved"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// Metrics records per-method call counts and latencies.
func Metrics() Interceptor {
	return func(ctx context.Context, req *protocol.Request, invoker Invoker) (*protocol.Response, error) {
		start := time.Now()
		service, method := target(req)

		resp, err := invoker(ctx, req)

		mode := "twoway"
		if req.OneWay {
			mode = "oneway"
		}

		rpcCallsTotal.WithLabelValues(service, method, mode, callStatus(err)).Inc()
		rpcDuration.WithLabelValues(service, method).Observe(time.Since(start).Seconds())

		return resp, err
	}
}
