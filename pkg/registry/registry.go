// Kunhua Huang 2026

// Package registry is the locator the binder asks for a service's
// endpoints. Lookups are one-shot; no watch is kept.
package registry

import (
	"context"
	"errors"
)

var (
	ErrNotFound     = errors.New("service not found")
	ErrNotConnected = errors.New("not connected to registry")
)

// Discovery resolves a service name to its live instances.
type Discovery interface {
	GetInstances(ctx context.Context, service string) ([]*ServiceInstance, error)
	Close() error
}

// Registrar publishes instances. Only the in-memory locator implements it;
// servers register themselves out of band.
type Registrar interface {
	Register(ctx context.Context, instance *ServiceInstance) error
	Deregister(ctx context.Context, service, instanceID string) error
}

// Endpoints returns the dial addresses of instances, in order.
func Endpoints(instances []*ServiceInstance) []string {
	endpoints := make([]string, 0, len(instances))
	for _, inst := range instances {
		endpoints = append(endpoints, inst.Endpoint())
	}
	return endpoints
}
