// backend.go - Backend-Interface und Registrierung fuer Tensor-Backends
// Dieses Modul definiert das Backend-Interface und die Backend-Factory-Funktionen.
package ml

import (
	"fmt"
	"maps"
	"slices"
)

// Backend represents a tensor execution backend (e.g., host).
type Backend interface {
	// NewContext returns a context that places tensors on the backend's device
	NewContext() Context

	// Dense returns the general attention primitive of this backend
	Dense() DenseAttention

	// Enumerate the devices available via this backend
	BackendDevices() []DeviceInfo
}

// VarlenBackend is implemented by backends that provide a kernel for the
// packed variable-length layout.
type VarlenBackend interface {
	Varlen() VarlenAttention
}

// BackendParams controls how a backend is created
type BackendParams struct {
	// Device is the device tensors of the backend report. Backends that
	// cannot serve the device return an error.
	Device Device
}

var backends = make(map[string]func(BackendParams) (Backend, error))

// RegisterBackend registers a backend factory function.
func RegisterBackend(name string, f func(BackendParams) (Backend, error)) {
	if _, ok := backends[name]; ok {
		panic("backend: backend already registered")
	}

	backends[name] = f
}

// NewBackend creates a new backend instance by name.
func NewBackend(name string, params BackendParams) (Backend, error) {
	if backend, ok := backends[name]; ok {
		return backend(params)
	}

	return nil, fmt.Errorf("unsupported backend %q (registered: %v)", name, Backends())
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	return slices.Sorted(maps.Keys(backends))
}
