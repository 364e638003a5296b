//go:build (linux || darwin || freebsd) && cgo

package kernels

import (
	"path/filepath"
	"plugin"
)

// PluginLoader opens units as Go plugins. Relative units are resolved
// against Dir and get a ".so" suffix if they have no extension.
type PluginLoader struct {
	Dir string
}

func (l PluginLoader) Load(unit, entry string) (any, error) {
	path := unit
	if filepath.Ext(path) == "" {
		path += ".so"
	}
	if l.Dir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(l.Dir, path)
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}

	return p.Lookup(entry)
}
