package codec

import (
	"bytes"
	"testing"

	"github.com/ecstasoy/rpcbind/pkg/protocol"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestJSONCodecRequestPayloads(t *testing.T) {
	c := GetOrDefault(protocol.CodecTypeJSON)

	tests := []struct {
		name      string
		args      interface{}
		wantCodec protocol.PayloadCodec
	}{
		{"raw", []byte{0x01, 0x02}, protocol.PayloadCodecRaw},
		{"json", map[string]int{"n": 7}, protocol.PayloadCodecJSON},
		{"protobuf", wrapperspb.String("hello"), protocol.PayloadCodecProtobuf},
		{"none", nil, protocol.PayloadCodecUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := protocol.NewRequest("hello", "sayHello", tt.args)
			req.Facet = "admin"

			data, err := c.Encode(req)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			var got protocol.Request
			if err := c.Decode(data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.ID != req.ID || got.Identity != "hello" || got.Facet != "admin" || got.Method != "sayHello" {
				t.Errorf("envelope = %v", &got)
			}
			if got.ArgsCodec != tt.wantCodec {
				t.Errorf("ArgsCodec = %v, want %v", got.ArgsCodec, tt.wantCodec)
			}
		})
	}
}

func TestDecodePayloadProtobuf(t *testing.T) {
	data, pc, err := EncodePayload(wrapperspb.String("hi"), protocol.PayloadCodecUnknown)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	var got wrapperspb.StringValue
	if err := DecodePayload(data, pc, &got); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if !proto.Equal(&got, wrapperspb.String("hi")) {
		t.Errorf("got %v", &got)
	}

	if err := DecodePayload(data, pc, new(string)); err == nil {
		t.Error("expected error decoding protobuf into a non-message")
	}
}

func TestEncodePayloadHintMismatch(t *testing.T) {
	if _, _, err := EncodePayload("text", protocol.PayloadCodecRaw); err == nil {
		t.Error("RAW hint with a string should fail")
	}
	if _, _, err := EncodePayload(42, protocol.PayloadCodecProtobuf); err == nil {
		t.Error("PROTOBUF hint with an int should fail")
	}
}

func TestJSONCodecResponseError(t *testing.T) {
	c := NewJSONCodec()
	resp := protocol.NewErrorResponse(9, protocol.NewError(protocol.ErrorCodeObjectNotExist, "no servant"))

	data, err := c.Encode(resp)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var got protocol.Response
	if err := c.Decode(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.IsError() || got.Error.Code != protocol.ErrorCodeObjectNotExist || got.ID != 9 {
		t.Errorf("got %v", &got)
	}
}

func TestCompressors(t *testing.T) {
	payload := bytes.Repeat([]byte("batch"), 200)

	for _, typ := range []protocol.CompressType{protocol.CompressTypeNone, protocol.CompressTypeGzip} {
		c := GetCompressorOrNone(typ)
		packed, err := c.Compress(payload)
		if err != nil {
			t.Fatalf("%s compress: %v", c.Name(), err)
		}
		unpacked, err := c.Decompress(packed)
		if err != nil {
			t.Fatalf("%s decompress: %v", c.Name(), err)
		}
		if !bytes.Equal(unpacked, payload) {
			t.Errorf("%s round trip mismatch", c.Name())
		}
	}

	if GetCompressorOrNone(protocol.CompressType(99)).Name() != "none" {
		t.Error("unknown compress type should fall back to none")
	}
}
