// Kunhua Huang 2026

package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/transport"
	"github.com/ecstasoy/rpcbind/pkg/transport/tcp"
)

var log = rpclog.Logger("pool")

var (
	ErrPoolClosed  = errors.New("connection pool is closed")
	ErrPoolTimeout = errors.New("wait for connection timeout")
)

// ----------------- Pool Options & Options -----------------

type PoolOptions struct {
	// MaxSize bounds the multiplexed connections kept per endpoint.
	MaxSize             int
	MaxIdleTime         time.Duration
	MaxLifetime         time.Duration
	CleanupInterval     time.Duration
	CodecType           protocol.CodecType
	CompressType        protocol.CompressType
	DialTimeout         time.Duration
	KeepAlive           bool
	KeepAlivePeriod     time.Duration
	EnableHealthCheck   bool
	HealthCheckInterval time.Duration

	ConnectionFactory ConnectionFactory
	Validator         PoolValidator
	WaitTimeout       time.Duration
}

func DefaultPoolOptions() *PoolOptions {
	return &PoolOptions{
		MaxSize:             4,
		MaxIdleTime:         90 * time.Second,
		MaxLifetime:         30 * time.Minute,
		CleanupInterval:     30 * time.Second,
		CodecType:           protocol.CodecTypeJSON,
		CompressType:        protocol.CompressTypeGzip,
		DialTimeout:         5 * time.Second,
		KeepAlive:           true,
		KeepAlivePeriod:     30 * time.Second,
		EnableHealthCheck:   true,
		HealthCheckInterval: 60 * time.Second,
		WaitTimeout:         5 * time.Second,
	}
}

type PoolOption func(*PoolOptions)

func WithPoolSize(max int) PoolOption {
	return func(opts *PoolOptions) {
		opts.MaxSize = max
	}
}

func WithIdleTimeout(timeout time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.MaxIdleTime = timeout
	}
}

func WithMaxLifetime(lifetime time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.MaxLifetime = lifetime
	}
}

func WithCleanupInterval(interval time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.CleanupInterval = interval
	}
}

func WithPoolCodec(codecType protocol.CodecType, compressType protocol.CompressType) PoolOption {
	return func(opts *PoolOptions) {
		opts.CodecType = codecType
		opts.CompressType = compressType
	}
}

func WithDialTimeout(timeout time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.DialTimeout = timeout
	}
}

func WithHealthCheck(enable bool, interval time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.EnableHealthCheck = enable
		opts.HealthCheckInterval = interval
	}
}

func WithConnectionFactory(factory ConnectionFactory) PoolOption {
	return func(opts *PoolOptions) {
		opts.ConnectionFactory = factory
	}
}

func WithPoolValidator(validator PoolValidator) PoolOption {
	return func(opts *PoolOptions) {
		opts.Validator = validator
	}
}

func WithWaitTimeout(timeout time.Duration) PoolOption {
	return func(opts *PoolOptions) {
		opts.WaitTimeout = timeout
	}
}

// ----------------- Connection Factory -----------------

type ConnectionFactory interface {
	Create(ctx context.Context, address string) (transport.Conn, error)
	Validate() error
}

type DefaultConnectionFactory struct {
	dialTimeout   time.Duration
	clientOptions []transport.ClientOption
}

func NewDefaultConnectionFactory(
	codecType protocol.CodecType,
	compressType protocol.CompressType,
	dialTimeout time.Duration,
	keepAlive bool,
	keepAlivePeriod time.Duration,
) *DefaultConnectionFactory {
	return &DefaultConnectionFactory{
		dialTimeout: dialTimeout,
		clientOptions: []transport.ClientOption{
			transport.WithCodec(codecType, compressType),
			transport.WithDialTimeout(dialTimeout),
			transport.WithKeepAlive(keepAlive, keepAlivePeriod),
		},
	}
}

func (f *DefaultConnectionFactory) Create(ctx context.Context, address string) (transport.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	conn, err := tcp.Dial(ctx, address, f.clientOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	return conn, nil
}

func (f *DefaultConnectionFactory) Validate() error {
	if f.dialTimeout <= 0 {
		return fmt.Errorf("dialTimeout must be > 0")
	}
	return nil
}


// ----------------- Retry Connection Factory -----------------

type RetryConnectionFactory struct {
	baseFactory   ConnectionFactory
	maxRetries    int
	retryInterval time.Duration
}

func NewRetryConnectionFactory(
	baseFactory ConnectionFactory,
	maxRetries int,
	retryInterval time.Duration,
) ConnectionFactory {
	return &RetryConnectionFactory{
		baseFactory:   baseFactory,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
	}
}

func (f *RetryConnectionFactory) Create(ctx context.Context, address string) (transport.Conn, error) {
	var lastErr error

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		conn, err := f.baseFactory.Create(ctx, address)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		if attempt < f.maxRetries {
			log.Debugf("dial %s attempt %d failed: %v", address, attempt+1, err)
			select {
			case <-time.After(f.retryInterval):
			case <-ctx.Done():
				return nil, fmt.Errorf("create connection canceled: %w", errors.Join(ctx.Err(), lastErr))
			}
		}
	}

	return nil, fmt.Errorf("create connection failed after %d retries: %w",
		f.maxRetries, lastErr)
}

func (f *RetryConnectionFactory) Validate() error {
	if f.baseFactory == nil {
		return fmt.Errorf("baseFactory is nil")
	}
	return f.baseFactory.Validate()
}

// ----------------- Pool Validator -----------------

type PoolValidator interface {
	Validate(opts *PoolOptions) error
}

type DefaultPoolValidator struct{}

func (v *DefaultPoolValidator) Validate(opts *PoolOptions) error {
	if opts.MaxSize <= 0 {
		return fmt.Errorf("MaxSize must be > 0, got %d", opts.MaxSize)
	}

	if opts.MaxIdleTime <= 0 {
		return fmt.Errorf("MaxIdleTime must be > 0, got %v", opts.MaxIdleTime)
	}

	if opts.MaxLifetime < 0 {
		return fmt.Errorf("MaxLifetime must be >= 0 (0 means unlimited), got %v",
			opts.MaxLifetime)
	}

	if opts.MaxLifetime > 0 && opts.MaxLifetime < opts.MaxIdleTime {
		return fmt.Errorf("MaxLifetime (%v) should be >= MaxIdleTime (%v)",
			opts.MaxLifetime, opts.MaxIdleTime)
	}

	if opts.CleanupInterval <= 0 {
		return fmt.Errorf("CleanupInterval must be > 0, got %v", opts.CleanupInterval)
	}

	if opts.CleanupInterval > opts.MaxIdleTime {
		return fmt.Errorf("CleanupInterval (%v) should be <= MaxIdleTime (%v)",
			opts.CleanupInterval, opts.MaxIdleTime)
	}

	if opts.CleanupInterval < time.Second {
		log.Warningf("CleanupInterval (%v) is very short, may impact performance",
			opts.CleanupInterval)
	}

	if opts.DialTimeout <= 0 {
		return fmt.Errorf("DialTimeout must be > 0, got %v", opts.DialTimeout)
	}

	if opts.KeepAlive && opts.KeepAlivePeriod <= 0 {
		return fmt.Errorf("KeepAlivePeriod must be > 0 when KeepAlive is enabled, got %v",
			opts.KeepAlivePeriod)
	}

	if opts.EnableHealthCheck && opts.HealthCheckInterval <= 0 {
		return fmt.Errorf("HealthCheckInterval must be > 0 when health check is enabled, got %v",
			opts.HealthCheckInterval)
	}

	if opts.WaitTimeout < 0 {
		return fmt.Errorf("WaitTimeout must be >= 0 (0 means wait forever), got %v",
			opts.WaitTimeout)
	}

	switch opts.CodecType {
	case protocol.CodecTypeJSON:
	default:
		return fmt.Errorf("unsupported CodecType: %v", opts.CodecType)
	}

	switch opts.CompressType {
	case protocol.CompressTypeNone, protocol.CompressTypeGzip:
	default:
		return fmt.Errorf("unsupported CompressType: %v", opts.CompressType)
	}

	return nil
}

// ----------------- Pooled Connection -----------------

type pooledConn struct {
	conn      transport.Conn
	createdAt time.Time
}

func (pc *pooledConn) healthy() bool {
	return pc.conn.Err() == nil
}

// expired reports whether the connection may be retired. A connection with
// requests in flight is never retired for age alone.
func (pc *pooledConn) expired(now time.Time, maxIdleTime, maxLifetime time.Duration) bool {
	if pc.conn.Outstanding() > 0 {
		return false
	}
	if now.Sub(pc.conn.LastActivity()) > maxIdleTime {
		return true
	}
	return maxLifetime > 0 && now.Sub(pc.createdAt) > maxLifetime
}

// ----------------- Connection Pool -----------------

// ConnectionPool keeps up to MaxSize multiplexed connections to one
// endpoint. Callers share connections; there is no checkout and no Put.
// The pool alone closes what it created.
type ConnectionPool struct {
	address  string
	opts     *PoolOptions
	factory  ConnectionFactory
	mu       sync.Mutex
	conns    []*pooledConn
	dialing  int
	changed  chan struct{}
	closed   bool
	stopOnce sync.Once
	stop     chan struct{}

	stats struct {
		getCount    int64
		createCount int64
		closeCount  int64
	}
}

func NewConnectionPool(address string, options ...PoolOption) (*ConnectionPool, error) {
	opts := DefaultPoolOptions()
	for _, opt := range options {
		opt(opts)
	}

	validator := opts.Validator
	if validator == nil {
		validator = &DefaultPoolValidator{}
	}

	if err := validator.Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid pool options: %w", err)
	}

	factory := opts.ConnectionFactory
	if factory == nil {
		factory = NewDefaultConnectionFactory(
			opts.CodecType,
			opts.CompressType,
			opts.DialTimeout,
			opts.KeepAlive,
			opts.KeepAlivePeriod,
		)
	}

	if err := factory.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection factory: %w", err)
	}

	pool := &ConnectionPool{
		address: address,
		opts:    opts,
		factory: factory,
		changed: make(chan struct{}),
		stop:    make(chan struct{}),
	}

	go pool.cleanupRoutine()
	if opts.EnableHealthCheck {
		go pool.healthCheckRoutine()
	}
	return pool, nil
}

func (p *ConnectionPool) Address() string {
	return p.address
}

// notifyLocked wakes callers waiting for a dial slot. p.mu must be held.
func (p *ConnectionPool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}

// Lookup returns the least loaded live connection without dialing.
func (p *ConnectionPool) Lookup() (transport.Conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, false
	}
	if pc := p.leastLoadedLocked(); pc != nil {
		return pc.conn, true
	}
	return nil, false
}

func (p *ConnectionPool) leastLoadedLocked() *pooledConn {
	var best *pooledConn
	bestLoad := 0
	for _, pc := range p.conns {
		if !pc.healthy() {
			continue
		}
		load := pc.conn.Outstanding()
		if best == nil || load < bestLoad {
			best, bestLoad = pc, load
		}
	}
	return best
}

// Get returns a live connection, dialing a new one when every existing
// connection is busy and the pool has room. When the pool is full and
// dials are in progress it waits up to WaitTimeout for one to finish.
func (p *ConnectionPool) Get(ctx context.Context) (transport.Conn, error) {
	atomic.AddInt64(&p.stats.getCount, 1)

	timeout := p.opts.WaitTimeout
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		p.removeDeadLocked()
		best := p.leastLoadedLocked()
		room := len(p.conns)+p.dialing < p.opts.MaxSize

		if best != nil && (best.conn.Outstanding() == 0 || !room) {
			p.mu.Unlock()
			return best.conn, nil
		}

		// A first dial already in progress is awaited rather than raced.
		if room && (best != nil || p.dialing == 0) {
			p.dialing++
			p.mu.Unlock()
			return p.dial(ctx)
		}

		changed := p.changed
		p.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-expire:
			return nil, fmt.Errorf("%w after %v", ErrPoolTimeout, timeout)
		}
	}
}

func (p *ConnectionPool) dial(ctx context.Context) (transport.Conn, error) {
	conn, err := p.factory.Create(ctx, p.address)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing--
	p.notifyLocked()

	if err != nil {
		return nil, fmt.Errorf("factory create failed: %w", err)
	}

	if p.closed {
		_ = conn.Close()
		atomic.AddInt64(&p.stats.closeCount, 1)
		return nil, ErrPoolClosed
	}

	p.conns = append(p.conns, &pooledConn{conn: conn, createdAt: time.Now()})
	atomic.AddInt64(&p.stats.createCount, 1)
	log.Debugf("pool %s: new connection %s (%d/%d)", p.address, conn.ID(), len(p.conns), p.opts.MaxSize)
	return conn, nil
}

// removeDeadLocked drops connections that already failed. p.mu must be held.
func (p *ConnectionPool) removeDeadLocked() {
	kept := p.conns[:0]
	removed := false
	for _, pc := range p.conns {
		if pc.healthy() {
			kept = append(kept, pc)
			continue
		}
		_ = pc.conn.Close()
		atomic.AddInt64(&p.stats.closeCount, 1)
		removed = true
	}
	clear(p.conns[len(kept):])
	p.conns = kept
	if removed {
		p.notifyLocked()
	}
}

func (p *ConnectionPool) cleanupRoutine() {
	ticker := time.NewTicker(p.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.cleanup()
		case <-p.stop:
			return
		}
	}
}

func (p *ConnectionPool) cleanup() {
	now := time.Now()

	p.mu.Lock()
	var retired []*pooledConn
	kept := p.conns[:0]
	for _, pc := range p.conns {
		if !pc.healthy() || pc.expired(now, p.opts.MaxIdleTime, p.opts.MaxLifetime) {
			retired = append(retired, pc)
			continue
		}
		kept = append(kept, pc)
	}
	clear(p.conns[len(kept):])
	p.conns = kept
	if len(retired) > 0 {
		p.notifyLocked()
	}
	p.mu.Unlock()

	for _, pc := range retired {
		log.Debugf("pool %s: retiring connection %s", p.address, pc.conn.ID())
		_ = pc.conn.Close()
		atomic.AddInt64(&p.stats.closeCount, 1)
	}
}

func (p *ConnectionPool) healthCheckRoutine() {
	ticker := time.NewTicker(p.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.healthCheck()
		case <-p.stop:
			return
		}
	}
}

func (p *ConnectionPool) healthCheck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeDeadLocked()
}

func (p *ConnectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	p.conns = nil
	p.notifyLocked()
	p.mu.Unlock()

	p.stopOnce.Do(func() { close(p.stop) })

	var errs []error
	for _, pc := range conns {
		if err := pc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
		atomic.AddInt64(&p.stats.closeCount, 1)
	}
	return errors.Join(errs...)
}

type PoolStats struct {
	Address     string
	CurrentSize int
	Outstanding int
	MaxSize     int
	GetCount    int64
	CreateCount int64
	CloseCount  int64
}

func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	currentSize := len(p.conns)
	outstanding := 0
	for _, pc := range p.conns {
		outstanding += pc.conn.Outstanding()
	}
	p.mu.Unlock()

	return PoolStats{
		Address:     p.address,
		CurrentSize: currentSize,
		Outstanding: outstanding,
		MaxSize:     p.opts.MaxSize,
		GetCount:    atomic.LoadInt64(&p.stats.getCount),
		CreateCount: atomic.LoadInt64(&p.stats.createCount),
		CloseCount:  atomic.LoadInt64(&p.stats.closeCount),
	}
}

func (s PoolStats) String() string {
	return fmt.Sprintf("Pool{Addr=%s, Size=%d/%d (outstanding=%d), "+
		"Get=%d, Create=%d, Close=%d}",
		s.Address, s.CurrentSize, s.MaxSize, s.Outstanding,
		s.GetCount, s.CreateCount, s.CloseCount)
}
