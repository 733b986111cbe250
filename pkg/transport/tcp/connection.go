// Kunhua Huang 2026

package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/transport"
)

var log = rpclog.Logger("tcp")

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrClosedByPeer     = errors.New("connection closed by peer")
)

type frame struct {
	data []byte
	req  handler.PendingRequest
}

// Connection multiplexes requests from any number of request handlers over
// one TCP session. Writes go out directly when the socket is idle and are
// queued otherwise; replies are matched to requests by ID in the read loop.
type Connection struct {
	id       string
	endpoint string
	opts     *transport.ClientOptions
	codec    *ProtocolCodec
	conn     net.Conn

	mu           sync.Mutex
	err          error
	pending      map[uint64]handler.PendingRequest
	writeQueue   []*frame
	writing      bool
	lastActivity time.Time

	batchCond     *sync.Cond
	batchInUse    bool
	batch         bytes.Buffer
	batchCount    int
	batchCompress bool

	closed chan struct{}
}

var _ transport.Conn = (*Connection)(nil)

func Dial(ctx context.Context, endpoint string, options ...transport.ClientOption) (*Connection, error) {
	opts := transport.DefaultClientOptions()
	for _, o := range options {
		o(opts)
	}

	dialer := &net.Dialer{
		Timeout:   opts.DialTimeout,
		KeepAlive: opts.KeepAlivePeriod,
	}

	conn, err := dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s failed: %w", endpoint, err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if opts.KeepAlive {
			if err := tcpConn.SetKeepAlive(true); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("set keep-alive failed: %w", err)
			}

			if err := tcpConn.SetKeepAlivePeriod(opts.KeepAlivePeriod); err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("set keep-alive period failed: %w", err)
			}
		}

		if err := tcpConn.SetNoDelay(true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("set no delay failed: %w", err)
		}
	}

	return newConnection(conn, endpoint, opts), nil
}

// NewConnection wraps an established net.Conn, e.g. one end of net.Pipe.
func NewConnection(conn net.Conn, endpoint string, options ...transport.ClientOption) *Connection {
	opts := transport.DefaultClientOptions()
	for _, o := range options {
		o(opts)
	}
	return newConnection(conn, endpoint, opts)
}

func newConnection(conn net.Conn, endpoint string, opts *transport.ClientOptions) *Connection {
	c := &Connection{
		id:           uuid.NewString(),
		endpoint:     endpoint,
		opts:         opts,
		codec:        NewProtocolCodec(opts.CodecType, opts.CompressType, opts.MaxFrameSize),
		conn:         conn,
		pending:      make(map[uint64]handler.PendingRequest),
		lastActivity: time.Now(),
		closed:       make(chan struct{}),
	}
	c.batchCond = sync.NewCond(&c.mu)

	go c.readLoop()

	log.Debugf("connection %s established to %s", c.id, endpoint)
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) Endpoint() string {
	return c.endpoint
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) + len(c.writeQueue)
}

// Closed is closed once the connection failed or was closed.
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// unavailableLocked must be called with c.mu held and c.err set.
func (c *Connection) unavailableLocked() error {
	return fmt.Errorf("%w: %s: %w", handler.ErrConnectionUnavailable, c.id, c.err)
}

// ----------------- Async Requests -----------------

func (c *Connection) SendAsyncRequest(req handler.PendingRequest, compress, response bool) (bool, error) {
	r := req.Request()
	r.SetMetadata(protocol.MetaKeyConnection, c.id)

	data, err := c.codec.EncodeRequest(r, compress)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return false, err
	}

	select {
	case <-req.Done():
		// Canceled before it could be written.
		c.mu.Unlock()
		return false, nil
	default:
	}

	if response {
		c.pending[r.ID] = req
	}
	c.mu.Unlock()

	sent, err := c.send(&frame{data: data, req: req})
	if err != nil {
		c.mu.Lock()
		delete(c.pending, r.ID)
		c.mu.Unlock()
	}
	return sent, err
}

// send writes f at once when no write is in progress and queues it
// otherwise. It reports whether f was written before returning.
func (c *Connection) send(f *frame) (bool, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return false, err
	}
	if c.writing {
		c.writeQueue = append(c.writeQueue, f)
		c.mu.Unlock()
		return false, nil
	}
	c.writing = true
	c.mu.Unlock()

	if err := c.write(f.data); err != nil {
		c.closeWithError(err)
		c.mu.Lock()
		defer c.mu.Unlock()
		return false, c.unavailableLocked()
	}

	c.mu.Lock()
	if len(c.writeQueue) > 0 {
		c.mu.Unlock()
		go c.flushQueue()
		return true, nil
	}
	c.writing = false
	c.mu.Unlock()
	return true, nil
}

// flushQueue drains the write queue. The caller owns the writing flag.
func (c *Connection) flushQueue() {
	for {
		c.mu.Lock()
		if len(c.writeQueue) == 0 || c.err != nil {
			c.writing = false
			c.mu.Unlock()
			return
		}
		f := c.writeQueue[0]
		c.writeQueue = c.writeQueue[1:]
		c.mu.Unlock()

		if f.req != nil {
			select {
			case <-f.req.Done():
				continue
			default:
			}
		}

		if err := c.write(f.data); err != nil {
			c.closeWithError(err)
			if f.req != nil {
				c.mu.Lock()
				failure := c.unavailableLocked()
				c.mu.Unlock()
				f.req.Complete(nil, failure)
			}
			return
		}

		if f.req != nil {
			f.req.Sent()
		}
	}
}

func (c *Connection) write(data []byte) error {
	if c.opts.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline failed: %w", err)
		}
	}

	if err := writeFull(c.conn, data); err != nil {
		return fmt.Errorf("write to connection failed: %w", err)
	}

	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
	return nil
}

// AsyncRequestCanceled forgets req and completes it with reason. A request
// that already completed keeps its first outcome.
func (c *Connection) AsyncRequestCanceled(req handler.PendingRequest, reason error) {
	c.mu.Lock()
	id := req.Request().ID
	if c.pending[id] == req {
		delete(c.pending, id)
	}
	for i, f := range c.writeQueue {
		if f.req == req {
			c.writeQueue = append(c.writeQueue[:i], c.writeQueue[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	req.Complete(nil, reason)
}

// ----------------- Batch Requests -----------------

// PrepareBatchRequest waits for the batch slot and resets out. Callers must
// pair it with exactly one FinishBatchRequest or AbortBatchRequest; calling
// either of those without a prepare panics.
func (c *Connection) PrepareBatchRequest(out *bytes.Buffer) error {
	c.mu.Lock()
	for c.batchInUse && c.err == nil {
		c.batchCond.Wait()
	}
	if c.err != nil {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return err
	}
	c.batchInUse = true
	c.mu.Unlock()

	out.Reset()
	return nil
}

func (c *Connection) FinishBatchRequest(out *bytes.Buffer, compress bool) error {
	c.mu.Lock()
	if !c.batchInUse {
		c.mu.Unlock()
		panic("tcp: FinishBatchRequest without PrepareBatchRequest")
	}
	c.batchInUse = false
	c.batchCond.Broadcast()

	if c.err != nil {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return err
	}

	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(out.Len()))
	c.batch.Write(size[:])
	c.batch.Write(out.Bytes())
	c.batchCount++
	if compress {
		c.batchCompress = true
	}

	flush := c.opts.BatchAutoFlushSize > 0 && c.batch.Len() >= c.opts.BatchAutoFlushSize
	c.mu.Unlock()

	if flush {
		return c.FlushBatchRequests(context.Background())
	}
	return nil
}

func (c *Connection) AbortBatchRequest() {
	c.mu.Lock()
	if !c.batchInUse {
		c.mu.Unlock()
		panic("tcp: AbortBatchRequest without PrepareBatchRequest")
	}
	c.batchInUse = false
	c.batchCond.Broadcast()
	c.mu.Unlock()
}

// BatchRequestCount is the number of requests waiting for a flush.
func (c *Connection) BatchRequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batchCount
}

// FlushBatchRequests sends the accumulated batch as one frame. The batch is
// compressed if any of its requests was finished with compression.
func (c *Connection) FlushBatchRequests(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	for c.batchInUse && c.err == nil {
		c.batchCond.Wait()
	}
	if c.err != nil {
		err := c.unavailableLocked()
		c.mu.Unlock()
		return err
	}
	if c.batchCount == 0 {
		c.mu.Unlock()
		return nil
	}

	body := append([]byte(nil), c.batch.Bytes()...)
	count, compress := c.batchCount, c.batchCompress
	c.batch.Reset()
	c.batchCount = 0
	c.batchCompress = false
	c.mu.Unlock()

	data, err := c.codec.EncodeBatch(body, count, compress)
	if err != nil {
		return fmt.Errorf("encode batch of %d requests: %w", count, err)
	}

	_, err = c.send(&frame{data: data})
	return err
}

// ----------------- Read Loop & Shutdown -----------------

func (c *Connection) readLoop() {
	for {
		header, body, err := c.codec.DecodeFromReader(c.conn)
		if err != nil {
			c.closeWithError(err)
			return
		}

		c.mu.Lock()
		c.lastActivity = time.Now()
		c.mu.Unlock()

		switch header.MsgType {
		case protocol.MsgTypeResponse:
			resp, err := c.codec.DecodeResponse(body)
			if err != nil {
				log.Warningf("connection %s: %v", c.id, err)
				continue
			}

			c.mu.Lock()
			req := c.pending[resp.ID]
			delete(c.pending, resp.ID)
			c.mu.Unlock()

			if req == nil {
				log.Debugf("connection %s: reply for unknown request %d", c.id, resp.ID)
				continue
			}
			req.Complete(resp, nil)

		case protocol.MsgTypeClose:
			c.closeWithError(ErrClosedByPeer)
			return

		default:
			log.Warningf("connection %s: unexpected %s frame", c.id, header.MsgType)
		}
	}
}

func (c *Connection) closeWithError(cause error) {
	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return
	}
	c.err = cause
	pending := c.pending
	c.pending = make(map[uint64]handler.PendingRequest)
	queued := c.writeQueue
	c.writeQueue = nil
	c.batch.Reset()
	c.batchCount = 0
	c.batchCond.Broadcast()
	failure := c.unavailableLocked()
	c.mu.Unlock()

	_ = c.conn.Close()
	close(c.closed)

	if !errors.Is(cause, ErrConnectionClosed) {
		log.Warningf("connection %s to %s lost: %v", c.id, c.endpoint, cause)
	}

	for _, req := range pending {
		req.Complete(nil, failure)
	}
	for _, f := range queued {
		if f.req != nil {
			f.req.Complete(nil, failure)
		}
	}
}

// Close fails every outstanding request and closes the socket. It is
// called by the pool; request handlers never close connections.
func (c *Connection) Close() error {
	c.closeWithError(ErrConnectionClosed)
	return nil
}

func writeFull(w net.Conn, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}
