// Kunhua Huang 2026

package registry

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// ServiceInstance is one server hosting a service. The JSON form is what
// the etcd locator stores under KeyPrefix/<service>/<id>.
type ServiceInstance struct {
	ID       string            `json:"id"`
	Service  string            `json:"service"`
	Version  string            `json:"version,omitempty"`
	Address  string            `json:"address"`
	Port     int               `json:"port"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Weight   int               `json:"weight,omitempty"`
	Status   InstanceStatus    `json:"status"`

	RegisterTime time.Time `json:"register_time"`
}

type InstanceStatus int

const (
	StatusUnknown InstanceStatus = iota
	StatusUp
	StatusDown
	StatusStarting
)

func (s InstanceStatus) String() string {
	switch s {
	case StatusUp:
		return "UP"
	case StatusDown:
		return "DOWN"
	case StatusStarting:
		return "STARTING"
	default:
		return "UNKNOWN"
	}
}

func NewServiceInstance(service, address string, port int) *ServiceInstance {
	return &ServiceInstance{
		ID:           fmt.Sprintf("%s-%s:%d", service, address, port),
		Service:      service,
		Address:      address,
		Port:         port,
		Metadata:     make(map[string]string),
		Weight:       100,
		Status:       StatusUp,
		RegisterTime: time.Now(),
	}
}

// Endpoint is the host:port the pool dials.
func (si *ServiceInstance) Endpoint() string {
	return net.JoinHostPort(si.Address, strconv.Itoa(si.Port))
}

// Available reports whether the instance should be offered to callers.
func (si *ServiceInstance) Available() bool {
	return si.Status == StatusUp
}
