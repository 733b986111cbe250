// Kunhua Huang 2026

package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ecstasoy/rpcbind/pkg/codec"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

// ProtocolCodec frames envelopes with protocol.Header.
//
// Compression is decided per frame: the binding that sends a request tells
// the codec whether to compress it, and the header records what was used so
// the reader can undo it.
type ProtocolCodec struct {
	codec        codec.Codec
	compressor   codec.Compressor
	codecType    protocol.CodecType
	compressType protocol.CompressType
	maxFrameSize uint32
}

func NewProtocolCodec(codecType protocol.CodecType, compressType protocol.CompressType, maxFrameSize uint32) *ProtocolCodec {
	return &ProtocolCodec{
		codec:        codec.GetOrDefault(codecType),
		compressor:   codec.GetCompressorOrNone(compressType),
		codecType:    codecType,
		compressType: compressType,
		maxFrameSize: maxFrameSize,
	}
}

// EncodeRequestBody encodes req without a frame header, as stored in a
// batch.
func (pc *ProtocolCodec) EncodeRequestBody(req *protocol.Request) ([]byte, error) {
	body, err := pc.codec.Encode(req)
	if err != nil {
		return nil, fmt.Errorf("encode request error: %w", err)
	}
	return body, nil
}

func (pc *ProtocolCodec) EncodeRequest(req *protocol.Request, compress bool) ([]byte, error) {
	body, err := pc.EncodeRequestBody(req)
	if err != nil {
		return nil, err
	}
	return pc.frame(protocol.MsgTypeRequest, req.ID, body, compress)
}

// EncodeBatch frames count length-prefixed request bodies.
func (pc *ProtocolCodec) EncodeBatch(body []byte, count int, compress bool) ([]byte, error) {
	return pc.frame(protocol.MsgTypeBatchRequest, uint64(count), body, compress)
}

func (pc *ProtocolCodec) EncodeResponse(resp *protocol.Response) ([]byte, error) {
	body, err := pc.codec.Encode(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response error: %w", err)
	}
	return pc.frame(protocol.MsgTypeResponse, resp.ID, body, false)
}

func (pc *ProtocolCodec) frame(msgType protocol.MessageType, id uint64, body []byte, compress bool) ([]byte, error) {
	compressType := protocol.CompressTypeNone
	if compress && pc.compressType != protocol.CompressTypeNone {
		packed, err := pc.compressor.Compress(body)
		if err != nil {
			return nil, fmt.Errorf("compress %s error: %w", msgType, err)
		}
		body = packed
		compressType = pc.compressType
	}

	header := protocol.NewHeader(msgType, pc.codecType, id, uint32(len(body)))
	header.Compress = compressType

	headerBytes := header.Encode()

	result := make([]byte, len(headerBytes)+len(body))
	copy(result[0:], headerBytes)
	copy(result[len(headerBytes):], body)

	return result, nil
}

func (pc *ProtocolCodec) DecodeFromReader(r io.Reader) (*protocol.Header, []byte, error) {
	headerBytes := make([]byte, protocol.HeaderLength)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("read header error: %w", err)
	}

	header := &protocol.Header{}
	if err := header.Decode(headerBytes); err != nil {
		return nil, nil, fmt.Errorf("decode header error: %w", err)
	}

	if pc.maxFrameSize > 0 && header.BodyLength > pc.maxFrameSize {
		return nil, nil, fmt.Errorf("frame body of %d bytes exceeds limit %d", header.BodyLength, pc.maxFrameSize)
	}

	bodyBytes := make([]byte, header.BodyLength)
	if _, err := io.ReadFull(r, bodyBytes); err != nil {
		return nil, nil, fmt.Errorf("read body error: %w", err)
	}

	compressor := codec.GetCompressor(header.Compress)
	if compressor == nil {
		return nil, nil, fmt.Errorf("unsupported compress type %s", header.Compress)
	}

	decompressedBodyData, err := compressor.Decompress(bodyBytes)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress body error: %w", err)
	}

	return header, decompressedBodyData, nil
}

func (pc *ProtocolCodec) DecodeRequest(data []byte) (*protocol.Request, error) {
	var req protocol.Request
	if err := pc.codec.Decode(data, &req); err != nil {
		return nil, fmt.Errorf("decode request error: %w", err)
	}
	return &req, nil
}

func (pc *ProtocolCodec) DecodeResponse(data []byte) (*protocol.Response, error) {
	var resp protocol.Response
	if err := pc.codec.Decode(data, &resp); err != nil {
		return nil, fmt.Errorf("decode response error: %w", err)
	}
	return &resp, nil
}

// DecodeBatch splits a batch body into its request bodies.
func (pc *ProtocolCodec) DecodeBatch(body []byte, count int) ([][]byte, error) {
	bodies := make([][]byte, 0, count)
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("truncated batch entry length")
		}
		n := binary.BigEndian.Uint32(body[:4])
		body = body[4:]
		if uint32(len(body)) < n {
			return nil, fmt.Errorf("truncated batch entry: want %d bytes, have %d", n, len(body))
		}
		bodies = append(bodies, body[:n])
		body = body[n:]
	}
	if len(bodies) != count {
		return nil, fmt.Errorf("batch holds %d requests, header says %d", len(bodies), count)
	}
	return bodies, nil
}

func (pc *ProtocolCodec) WriteResponse(w io.Writer, resp *protocol.Response) error {
	data, err := pc.EncodeResponse(resp)
	if err != nil {
		return fmt.Errorf("encode response error: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write response error: %w", err)
	}

	return nil
}
