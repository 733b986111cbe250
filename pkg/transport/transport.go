// Kunhua Huang 2025

package transport

import (
	"net"
	"time"

	"github.com/ecstasoy/rpcbind/pkg/handler"
)

// Conn is a handler.Connection as seen by the pool that owns it. Request
// handlers only ever see the handler.Connection half.
type Conn interface {
	handler.Connection

	Close() error
	Endpoint() string
	RemoteAddr() net.Addr

	// LastActivity is the time of the last frame written or read.
	LastActivity() time.Time
	// Outstanding counts two-way requests awaiting a reply plus queued writes.
	Outstanding() int
}
