package protocol

import (
	"fmt"
	"sync/atomic"
	"time"
)

// PayloadCodec tells the peer how Args (or Response.Data) was encoded
// inside the envelope.
type PayloadCodec int32

const (
	PayloadCodecUnknown PayloadCodec = iota
	PayloadCodecRaw
	PayloadCodecJSON
	PayloadCodecProtobuf
)

func (c PayloadCodec) String() string {
	switch c {
	case PayloadCodecRaw:
		return "raw"
	case PayloadCodecJSON:
		return "json"
	case PayloadCodecProtobuf:
		return "protobuf"
	default:
		return "unknown"
	}
}

type Request struct {
	ID        uint64       `json:"id"`
	Identity  string       `json:"identity"`
	Facet     string       `json:"facet,omitempty"`
	Service   string       `json:"service,omitempty"`
	Method    string       `json:"method"`
	Args      interface{}  `json:"args"`
	ArgsCodec PayloadCodec `json:"args_codec,omitempty"`
	OneWay    bool         `json:"one_way,omitempty"`
	Timeout   int64        `json:"timeout,omitempty"`
	Metadata  Metadata     `json:"metadata,omitempty"`
	CreatedAt int64        `json:"created_at,omitempty"`
}

var requestIDCounter uint64

func NewRequest(identity, method string, args interface{}) *Request {
	return &Request{
		ID:        nextRequestID(),
		Identity:  identity,
		Method:    method,
		Args:      args,
		Metadata:  NewMetadata(),
		CreatedAt: time.Now().UnixNano(),
	}
}

func nextRequestID() uint64 {
	return atomic.AddUint64(&requestIDCounter, 1)
}

func (r *Request) SetTimeout(timeout time.Duration) {
	r.Timeout = timeout.Milliseconds()
}

func (r *Request) GetTimeout() time.Duration {
	if r.Timeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.Timeout) * time.Millisecond
}

func (r *Request) SetMetadata(key, value string) {
	if r.Metadata == nil {
		r.Metadata = NewMetadata()
	}
	r.Metadata.Set(key, value)
}

func (r *Request) GetMetadata(key string) (string, bool) {
	if r.Metadata == nil {
		return "", false
	}
	return r.Metadata.Get(key)
}

func (r *Request) String() string {
	return fmt.Sprintf(
		"Request{ID=%d, Identity=%s, Facet=%s, Method=%s, OneWay=%t, Timeout=%dms}",
		r.ID, r.Identity, r.Facet, r.Method, r.OneWay, r.Timeout,
	)
}
