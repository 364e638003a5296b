//go:build !((linux || darwin || freebsd) && cgo)

package kernels

import (
	"fmt"
	"runtime"
)

// PluginLoader is unavailable on this platform; every load fails.
type PluginLoader struct {
	Dir string
}

func (l PluginLoader) Load(unit, entry string) (any, error) {
	return nil, fmt.Errorf("cannot load %s:%s, go plugins are not supported on %s/%s without cgo", unit, entry, runtime.GOOS, runtime.GOARCH)
}
