package protocol

// Metadata is the per-request context carried next to the arguments.
type Metadata map[string]string

const (
	MetaKeyTraceID = "trace-id"
	MetaKeySpanID  = "span-id"

	// MetaKeyConnection is stamped by the transport with the id of the
	// connection that carried the request.
	MetaKeyConnection = "connection-id"
	MetaKeyBatch      = "batch"
)

func NewMetadata() Metadata {
	return make(Metadata)
}

func (m Metadata) Set(key, value string) {
	m[key] = value
}

func (m Metadata) Get(key string) (string, bool) {
	val, ok := m[key]
	return val, ok
}

// Clone prevents concurrent map r/w panic when a request is replayed
// on another connection.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	cloneMap := make(Metadata, len(m))
	for k, v := range m {
		cloneMap[k] = v
	}
	return cloneMap
}

func (m Metadata) Merge(other Metadata) {
	for k, v := range other {
		m[k] = v
	}
}
