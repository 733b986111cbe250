package transport

import (
	"time"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

type ClientOptions struct {
	DialTimeout     time.Duration
	KeepAlive       bool
	KeepAlivePeriod time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int

	CodecType    protocol.CodecType
	CompressType protocol.CompressType

	// BatchAutoFlushSize flushes the batch once it grows past this many
	// bytes. Zero disables auto flush.
	BatchAutoFlushSize int
	// MaxFrameSize bounds incoming frame bodies.
	MaxFrameSize uint32
}

func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		DialTimeout:     5 * time.Second,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,
		WriteTimeout:    10 * time.Second,

		ReadBufferSize:  4 * 1024,
		WriteBufferSize: 4 * 1024,

		CodecType:    protocol.CodecTypeJSON,
		CompressType: protocol.CompressTypeGzip,

		BatchAutoFlushSize: 1024 * 1024,
		MaxFrameSize:       10 * 1024 * 1024,
	}
}

type ClientOption func(*ClientOptions)

func WithDialTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.DialTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.WriteTimeout = timeout
	}
}

func WithKeepAlive(keepAlive bool, period time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.KeepAlive = keepAlive
		opts.KeepAlivePeriod = period
	}
}

func WithBufferSize(readSize, writeSize int) ClientOption {
	return func(opts *ClientOptions) {
		opts.ReadBufferSize = readSize
		opts.WriteBufferSize = writeSize
	}
}

// WithCodec sets the envelope codec and the compressor used for frames
// whose binding asked for compression.
func WithCodec(codecType protocol.CodecType, compressType protocol.CompressType) ClientOption {
	return func(opts *ClientOptions) {
		opts.CodecType = codecType
		opts.CompressType = compressType
	}
}

func WithBatchAutoFlush(size int) ClientOption {
	return func(opts *ClientOptions) {
		opts.BatchAutoFlushSize = size
	}
}

func WithMaxFrameSize(size uint32) ClientOption {
	return func(opts *ClientOptions) {
		opts.MaxFrameSize = size
	}
}
