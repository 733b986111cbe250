// Kunhua Huang 2026

// Package proxy is the client-side stand-in for a remote object. A Proxy
// caches the request handler its binder gave it and swaps it atomically as
// the binding evolves.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ecstasoy/rpcbind/pkg/codec"
	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/interceptor"
	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/outgoing"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

var log = rpclog.Logger("proxy")

var ErrBatchMode = errors.New("asynchronous invocation on a batch proxy")

// Binder hands out the request handler for a reference.
type Binder interface {
	RequestHandler(ref *reference.Reference, proxy handler.Proxy) handler.RequestHandler
}

// ----------------- Options -----------------

type options struct {
	codecType protocol.CodecType
	chain     *interceptor.Chain
}

type Option func(*options)

// WithCodec selects the envelope codec used to encode batched requests. It
// must match the codec of the connections the binder hands out.
func WithCodec(codecType protocol.CodecType) Option {
	return func(o *options) {
		o.codecType = codecType
	}
}

func WithInterceptors(interceptors ...interceptor.Interceptor) Option {
	return func(o *options) {
		o.chain = o.chain.Append(interceptors...)
	}
}

// WithChain replaces the interceptor chain.
func WithChain(chain *interceptor.Chain) Option {
	return func(o *options) {
		o.chain = chain
	}
}

// ----------------- Proxy -----------------

// slot boxes the cached handler so it can live in an atomic.Pointer.
type slot struct {
	h handler.RequestHandler
}

type Proxy struct {
	ref    *reference.Reference
	binder Binder
	opts   *options
	codec  codec.Codec

	current atomic.Pointer[slot]
}

var _ handler.Proxy = (*Proxy)(nil)

func New(ref *reference.Reference, binder Binder, opts ...Option) (*Proxy, error) {
	if ref == nil {
		return nil, fmt.Errorf("proxy: nil reference")
	}
	if binder == nil {
		return nil, fmt.Errorf("proxy %s: nil binder", ref)
	}

	o := &options{
		codecType: protocol.CodecTypeJSON,
		chain:     interceptor.NewChain(),
	}
	for _, opt := range opts {
		opt(o)
	}

	c := codec.Get(o.codecType)
	if c == nil {
		return nil, fmt.Errorf("proxy %s: unsupported codec %s", ref, o.codecType)
	}

	return &Proxy{
		ref:    ref,
		binder: binder,
		opts:   o,
		codec:  c,
	}, nil
}

func (p *Proxy) Reference() *reference.Reference {
	return p.ref
}

// Derive returns a proxy for p's reference with opts applied, sharing p's
// binder and interceptors. The new proxy binds on its own.
func (p *Proxy) Derive(opts ...reference.Option) (*Proxy, error) {
	ref, err := p.ref.Derive(opts...)
	if err != nil {
		return nil, err
	}
	return &Proxy{
		ref:    ref,
		binder: p.binder,
		opts:   p.opts,
		codec:  p.codec,
	}, nil
}

// RequestHandler returns the cached handler, asking the binder for one when
// the slot is empty.
func (p *Proxy) RequestHandler() handler.RequestHandler {
	for {
		if cur := p.current.Load(); cur != nil {
			return cur.h
		}

		h := p.binder.RequestHandler(p.ref, p).Connect(p)
		if p.current.CompareAndSwap(nil, &slot{h: h}) {
			// A resolution that finished before the swap found the slot
			// empty; connecting again applies its switch.
			h.Connect(p)
			return h
		}
	}
}

// UpdateRequestHandler lets the cached handler decide whether candidate
// replaces it, given that the caller observed previous. The decision and
// the swap are retried until the slot did not move underneath.
func (p *Proxy) UpdateRequestHandler(previous, candidate handler.RequestHandler) {
	for {
		cur := p.current.Load()
		if cur == nil {
			return
		}

		next := cur.h.Update(previous, candidate)
		if next == cur.h {
			return
		}

		var replacement *slot
		if next != nil {
			replacement = &slot{h: next}
		}
		if p.current.CompareAndSwap(cur, replacement) {
			return
		}
	}
}

// failed drops h from the slot when err means h can no longer carry
// requests, so that the next invocation rebinds. The failed invocation is
// not retried.
func (p *Proxy) failed(h handler.RequestHandler, err error) {
	if errors.Is(err, handler.ErrConnectionUnavailable) || errors.Is(err, handler.ErrResolutionFailed) {
		log.Debugf("%s: dropping handler after %v", p.ref, err)
		p.UpdateRequestHandler(h, nil)
	}
}

// Connection waits until the proxy is bound and returns its connection.
func (p *Proxy) Connection(ctx context.Context) (handler.Connection, error) {
	h := p.RequestHandler()
	conn, err := h.WaitForConnection(ctx)
	if err != nil {
		p.failed(h, err)
		return nil, err
	}
	return conn, nil
}

// CachedConnection returns the connection of the cached handler without
// binding or waiting.
func (p *Proxy) CachedConnection() (handler.Connection, error) {
	cur := p.current.Load()
	if cur == nil {
		return nil, handler.ErrBindingNotReady
	}
	return cur.h.Connection()
}

// ----------------- Invocation -----------------

func (p *Proxy) newRequest(method string, args interface{}) *protocol.Request {
	req := protocol.NewRequest(p.ref.Identity(), method, args)
	req.Facet = p.ref.Facet()
	req.Service = p.ref.Service()
	req.OneWay = !p.ref.IsTwoWay()
	if timeout := p.ref.Timeout(); timeout > 0 {
		req.SetTimeout(timeout)
	}
	return req
}

func (p *Proxy) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if timeout := p.ref.Timeout(); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// Invoke calls method with args. Two-way proxies wait for the reply; a
// remote failure is returned as a *RemoteError alongside the response.
// One-way and datagram proxies return once the request is written. Batch
// proxies return once the request is queued; FlushBatchRequests sends it.
func (p *Proxy) Invoke(ctx context.Context, method string, args interface{}) (*protocol.Response, error) {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	return p.opts.chain.Intercept(ctx, p.newRequest(method, args), p.invoke)
}

// InvokeInto is Invoke for two-way proxies, decoding the reply payload
// into reply.
func (p *Proxy) InvokeInto(ctx context.Context, method string, args, reply interface{}) error {
	resp, err := p.Invoke(ctx, method, args)
	if err != nil {
		return err
	}
	if resp == nil || reply == nil {
		return nil
	}
	data, ok := resp.Data.([]byte)
	if !ok {
		return fmt.Errorf("%s: reply payload is %T", method, resp.Data)
	}
	return codec.DecodePayload(data, resp.DataCodec, reply)
}

func (p *Proxy) invoke(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if p.ref.IsBatch() {
		return nil, p.queueBatch(req)
	}

	async := outgoing.NewAsync(req)
	h, err := p.send(async)
	if err != nil {
		return nil, err
	}
	return p.wait(ctx, h, async)
}

// InvokeAsync sends method with args and returns without waiting. The
// interceptor chain observes the send only.
func (p *Proxy) InvokeAsync(ctx context.Context, method string, args interface{}) (*outgoing.Async, error) {
	if p.ref.IsBatch() {
		return nil, ErrBatchMode
	}

	req := p.newRequest(method, args)
	async := outgoing.NewAsync(req)
	_, err := p.opts.chain.Intercept(ctx, req, func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
		_, err := p.send(async)
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return async, nil
}

// Cancel abandons an asynchronous invocation. It has no effect once the
// invocation completed. The cancel goes to the handler that took the
// request, not to whatever handler the proxy holds now.
func (p *Proxy) Cancel(async *outgoing.Async, reason error) {
	if h := async.Handler(); h != nil {
		h.AsyncRequestCanceled(async, reason)
		return
	}
	async.Complete(nil, reason)
}

func (p *Proxy) send(async *outgoing.Async) (handler.RequestHandler, error) {
	h := p.RequestHandler()
	async.SetHandler(h)
	sent, sentCallback, err := h.SendAsyncRequest(async)
	if err != nil {
		p.failed(h, err)
		return h, err
	}
	if sent && sentCallback != nil {
		sentCallback()
	}
	return h, nil
}

func (p *Proxy) wait(ctx context.Context, h handler.RequestHandler, async *outgoing.Async) (*protocol.Response, error) {
	select {
	case <-async.Done():
	case <-ctx.Done():
		// Whichever completes first, the reply or the cancellation, wins.
		h.AsyncRequestCanceled(async, ctx.Err())
	}

	resp, err := async.Result()
	if err != nil {
		p.failed(h, err)
		return nil, err
	}
	if resp != nil && resp.IsError() {
		return resp, MapError(resp.Error)
	}
	return resp, nil
}

// ----------------- Batch -----------------

func (p *Proxy) queueBatch(req *protocol.Request) error {
	req.OneWay = true
	req.SetMetadata(protocol.MetaKeyBatch, "true")

	h := p.RequestHandler()
	var out bytes.Buffer
	if err := h.PrepareBatchRequest(&out); err != nil {
		p.failed(h, err)
		return err
	}

	body, err := p.codec.Encode(req)
	if err != nil {
		h.AbortBatchRequest()
		return fmt.Errorf("encode batch request %s: %w", req.Method, err)
	}
	out.Write(body)

	if err := h.FinishBatchRequest(&out); err != nil {
		p.failed(h, err)
		return err
	}
	return nil
}

// FlushBatchRequests sends the requests queued by batch invocations. It
// waits for the binding to complete first.
func (p *Proxy) FlushBatchRequests(ctx context.Context) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	h := p.RequestHandler()
	conn, err := h.WaitForConnection(ctx)
	if err != nil {
		p.failed(h, err)
		return err
	}
	if err := conn.FlushBatchRequests(ctx); err != nil {
		p.failed(h, err)
		return err
	}
	return nil
}
