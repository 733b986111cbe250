package protocol

import "testing"

func TestHeaderEncodeDecode(t *testing.T) {
	h := NewHeader(MsgTypeBatchRequest, CodecTypeJSON, 3, 128)
	h.Compress = CompressTypeGzip

	var got Header
	if err := got.Decode(h.Encode()); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != *h {
		t.Fatalf("got %v, want %v", &got, h)
	}
}

func TestHeaderDecodeRejectsBadMagic(t *testing.T) {
	buf := NewHeader(MsgTypeRequest, CodecTypeJSON, 1, 0).Encode()
	buf[0] = 0x00

	var h Header
	if err := h.Decode(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
	if err := h.Decode(buf[:10]); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestParseCompressType(t *testing.T) {
	tests := []struct {
		name    string
		want    CompressType
		wantErr bool
	}{
		{"", CompressTypeNone, false},
		{"none", CompressTypeNone, false},
		{"gzip", CompressTypeGzip, false},
		{"lz4", CompressTypeNone, true},
	}

	for _, tt := range tests {
		got, err := ParseCompressType(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCompressType(%q) err = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseCompressType(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
