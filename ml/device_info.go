// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Struktur fuer die Geraete-Auflistung
// der Backends.

package ml

import (
	"log/slog"
	"strings"
)

type DeviceInfo struct {
	// Device is the placement tensors on this device report
	Device Device `json:"device"`

	// Name is the name of the device as labeled by the backend
	Name string `json:"name"`

	// Description is the longer user-friendly identification of the device
	Description string `json:"description"`

	// Features lists instruction set or kernel features the backend detected
	Features []string `json:"features,omitempty"`

	// ThreadCount is the number of threads the backend will use
	ThreadCount int `json:"threads,omitempty"`
}

func (d DeviceInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("device", d.Device),
		slog.String("name", d.Name),
		slog.String("description", d.Description),
		slog.String("features", strings.Join(d.Features, ",")),
	)
}
