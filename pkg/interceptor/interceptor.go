// Kunhua Huang 2026

package interceptor

import (
	"context"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

// Invoker runs one invocation. For two-way requests it returns the reply;
// for one-way and batched requests it returns a nil response once the
// request was handed to the transport.
type Invoker func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

type Interceptor func(ctx context.Context, req *protocol.Request, invoker Invoker) (*protocol.Response, error)

type Chain struct {
	interceptors []Interceptor
}

func NewChain(interceptor ...Interceptor) *Chain {
	return &Chain{interceptors: interceptor}
}

// Append returns a chain running ic's interceptors followed by more.
func (ic *Chain) Append(more ...Interceptor) *Chain {
	all := make([]Interceptor, 0, ic.Len()+len(more))
	if ic != nil {
		all = append(all, ic.interceptors...)
	}
	return &Chain{interceptors: append(all, more...)}
}

func (ic *Chain) Len() int {
	if ic == nil {
		return 0
	}
	return len(ic.interceptors)
}

func (ic *Chain) Intercept(ctx context.Context, req *protocol.Request, invoker Invoker) (*protocol.Response, error) {
	if ic.Len() == 0 {
		return invoker(ctx, req)
	}

	return ic.buildChain(invoker)(ctx, req)
}

func (ic *Chain) buildChain(invoker Invoker) Invoker {
	for i := len(ic.interceptors) - 1; i >= 0; i-- {
		next := invoker
		interceptor := ic.interceptors[i]

		invoker = func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return interceptor(ctx, req, next)
		}
	}

	return invoker
}

// target names the invoked operation in logs and metrics.
func target(req *protocol.Request) (service, method string) {
	service = req.Service
	if service == "" {
		service = "direct"
	}
	method = req.Method
	if req.Facet != "" {
		method = req.Facet + "/" + method
	}
	return service, method
}
