// Kunhua Huang 2025

package codec

import (
	"fmt"
	"sync"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

// Codec encodes Request/Response envelopes to and from bytes. Framing and
// compression are the transport's business.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(data []byte, v interface{}) error
	Name() string
}

var registry = struct {
	codecs map[protocol.CodecType]Codec
	sync.RWMutex
}{
	codecs: make(map[protocol.CodecType]Codec),
}

func Register(typ protocol.CodecType, codec Codec) {
	registry.Lock()
	defer registry.Unlock()

	if codec == nil {
		panic(fmt.Sprintf("codec: Register codec is nil for type %s", typ))
	}

	if _, exists := registry.codecs[typ]; exists {
		panic(fmt.Sprintf("codec: Register called twice for type %s", typ))
	}

	registry.codecs[typ] = codec
}

func Get(typ protocol.CodecType) Codec {
	registry.RLock()
	defer registry.RUnlock()

	return registry.codecs[typ]
}

func GetOrDefault(typ protocol.CodecType) Codec {
	codec := Get(typ)
	if codec == nil {
		codec = Get(protocol.CodecTypeJSON)
	}
	return codec
}

func init() {
	Register(protocol.CodecTypeJSON, NewJSONCodec())
}
