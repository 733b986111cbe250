// Kunhua Huang 2025

package codec

import (
	"encoding/json"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/protocol"

	"google.golang.org/protobuf/proto"
)

type JSONCodec struct{}

var _ Codec = (*JSONCodec)(nil)

func NewJSONCodec() Codec {
	return &JSONCodec{}
}

// wireRequest carries Args as opaque bytes tagged with the codec that
// produced them.
type wireRequest struct {
	ID        uint64                `json:"id"`
	Identity  string                `json:"identity"`
	Facet     string                `json:"facet,omitempty"`
	Service   string                `json:"service,omitempty"`
	Method    string                `json:"method"`
	Args      []byte                `json:"args,omitempty"`
	ArgsCodec protocol.PayloadCodec `json:"args_codec,omitempty"`
	OneWay    bool                  `json:"one_way,omitempty"`
	Timeout   int64                 `json:"timeout,omitempty"`
	Metadata  protocol.Metadata     `json:"metadata,omitempty"`
	CreatedAt int64                 `json:"created_at,omitempty"`
}

type wireResponse struct {
	ID         uint64                `json:"id"`
	Data       []byte                `json:"data,omitempty"`
	DataCodec  protocol.PayloadCodec `json:"data_codec,omitempty"`
	Error      *protocol.Error       `json:"error,omitempty"`
	Metadata   protocol.Metadata     `json:"metadata,omitempty"`
	ServerTime int64                 `json:"server_time,omitempty"`
}

func (c *JSONCodec) Encode(v interface{}) ([]byte, error) {
	switch m := v.(type) {
	case *protocol.Request:
		return c.encodeRequest(m)
	case *protocol.Response:
		return c.encodeResponse(m)
	default:
		return json.Marshal(v)
	}
}

func (c *JSONCodec) Decode(data []byte, v interface{}) error {
	switch m := v.(type) {
	case *protocol.Request:
		return c.decodeRequest(data, m)
	case *protocol.Response:
		return c.decodeResponse(data, m)
	default:
		return json.Unmarshal(data, v)
	}
}

func (c *JSONCodec) Name() string {
	return "json"
}

func (c *JSONCodec) encodeRequest(req *protocol.Request) ([]byte, error) {
	args, argsCodec, err := EncodePayload(req.Args, req.ArgsCodec)
	if err != nil {
		return nil, fmt.Errorf("encode args of %s: %w", req.Method, err)
	}

	return json.Marshal(&wireRequest{
		ID:        req.ID,
		Identity:  req.Identity,
		Facet:     req.Facet,
		Service:   req.Service,
		Method:    req.Method,
		Args:      args,
		ArgsCodec: argsCodec,
		OneWay:    req.OneWay,
		Timeout:   req.Timeout,
		Metadata:  req.Metadata,
		CreatedAt: req.CreatedAt,
	})
}

func (c *JSONCodec) decodeRequest(data []byte, req *protocol.Request) error {
	var w wireRequest
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("json codec: decode request failed: %w", err)
	}

	*req = protocol.Request{
		ID:        w.ID,
		Identity:  w.Identity,
		Facet:     w.Facet,
		Service:   w.Service,
		Method:    w.Method,
		ArgsCodec: w.ArgsCodec,
		OneWay:    w.OneWay,
		Timeout:   w.Timeout,
		Metadata:  w.Metadata,
		CreatedAt: w.CreatedAt,
	}
	if w.Args != nil {
		req.Args = w.Args
	}
	return nil
}

func (c *JSONCodec) encodeResponse(resp *protocol.Response) ([]byte, error) {
	payload, dataCodec, err := EncodePayload(resp.Data, resp.DataCodec)
	if err != nil {
		return nil, fmt.Errorf("encode response data: %w", err)
	}

	return json.Marshal(&wireResponse{
		ID:         resp.ID,
		Data:       payload,
		DataCodec:  dataCodec,
		Error:      resp.Error,
		Metadata:   resp.Metadata,
		ServerTime: resp.ServerTime,
	})
}

func (c *JSONCodec) decodeResponse(data []byte, resp *protocol.Response) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("json codec: decode response failed: %w", err)
	}

	*resp = protocol.Response{
		ID:         w.ID,
		DataCodec:  w.DataCodec,
		Error:      w.Error,
		Metadata:   w.Metadata,
		ServerTime: w.ServerTime,
	}
	if w.Data != nil {
		resp.Data = w.Data
	}
	return nil
}

// EncodePayload turns args into bytes. With PayloadCodecUnknown the codec
// is picked from the value: []byte is raw, proto.Message is protobuf,
// anything else is JSON.
func EncodePayload(v interface{}, hint protocol.PayloadCodec) ([]byte, protocol.PayloadCodec, error) {
	if v == nil {
		return nil, protocol.PayloadCodecUnknown, nil
	}

	if raw, ok := v.([]byte); ok {
		if hint == protocol.PayloadCodecUnknown {
			hint = protocol.PayloadCodecRaw
		}
		return raw, hint, nil
	}

	switch hint {
	case protocol.PayloadCodecRaw:
		return nil, hint, fmt.Errorf("payload codec is RAW but value is %T", v)
	case protocol.PayloadCodecJSON:
		data, err := json.Marshal(v)
		return data, hint, err
	case protocol.PayloadCodecProtobuf:
		msg, ok := v.(proto.Message)
		if !ok {
			return nil, hint, fmt.Errorf("payload codec is PROTOBUF but value is %T", v)
		}
		data, err := proto.Marshal(msg)
		return data, hint, err
	case protocol.PayloadCodecUnknown:
		if msg, ok := v.(proto.Message); ok {
			data, err := proto.Marshal(msg)
			return data, protocol.PayloadCodecProtobuf, err
		}
		data, err := json.Marshal(v)
		return data, protocol.PayloadCodecJSON, err
	default:
		return nil, hint, fmt.Errorf("unsupported payload codec: %v", hint)
	}
}

// DecodePayload unmarshals data produced by EncodePayload into v.
func DecodePayload(data []byte, pc protocol.PayloadCodec, v interface{}) error {
	switch pc {
	case protocol.PayloadCodecRaw:
		dst, ok := v.(*[]byte)
		if !ok {
			return fmt.Errorf("raw payload needs *[]byte, got %T", v)
		}
		*dst = append((*dst)[:0], data...)
		return nil
	case protocol.PayloadCodecProtobuf:
		msg, ok := v.(proto.Message)
		if !ok {
			return fmt.Errorf("protobuf payload needs proto.Message, got %T", v)
		}
		return proto.Unmarshal(data, msg)
	case protocol.PayloadCodecJSON, protocol.PayloadCodecUnknown:
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported payload codec: %v", pc)
	}
}
