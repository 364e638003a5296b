// loader.go - Aufloesung symbolischer Kernel-Referenzen
// Enthält: Loader-Interface, Catalog (In-Process-Units), DefaultLoader

package kernels

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/nanochat/nanochat/envconfig"
)

// Loader resolves the entry point of a loadable unit to a symbol. Errors
// are reported to the caller of Resolve wrapped in ErrConfiguration.
type Loader interface {
	Load(unit, entry string) (any, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(unit, entry string) (any, error)

func (f LoaderFunc) Load(unit, entry string) (any, error) {
	return f(unit, entry)
}

// Catalog is an in-process table of named units, each exporting named
// entry points. Kernel packages add themselves in init, comparable to
// database/sql drivers.
type Catalog struct {
	mu    sync.RWMutex
	units map[string]map[string]any
}

// Units is the process catalog consulted by DefaultLoader.
var Units = NewCatalog()

func NewCatalog() *Catalog {
	return &Catalog{units: make(map[string]map[string]any)}
}

// Add exports sym as unit:entry, replacing a previous export.
func (c *Catalog) Add(unit, entry string, sym any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.units[unit] == nil {
		c.units[unit] = make(map[string]any)
	}
	c.units[unit][entry] = sym
}

// Remove deletes a whole unit.
func (c *Catalog) Remove(unit string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.units, unit)
}

func (c *Catalog) Load(unit, entry string) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, ok := c.units[unit]
	if !ok {
		return nil, fmt.Errorf("no unit named %q%s", unit, suggest(unit, slices.Collect(maps.Keys(c.units))))
	}

	sym, ok := entries[entry]
	if !ok {
		return nil, fmt.Errorf("unit %q has no entry %q%s", unit, entry, suggest(entry, slices.Collect(maps.Keys(entries))))
	}

	return sym, nil
}

// suggest formatiert den aehnlichsten Namen als Hinweis fuer Tippfehler
func suggest(name string, candidates []string) string {
	slices.Sort(candidates)

	best, score := "", len(name)/2+1
	for _, c := range candidates {
		if d := levenshtein.ComputeDistance(name, c); d < score {
			best, score = c, d
		}
	}

	if best == "" {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

// DefaultLoader loads units that look like file paths ("*.so" or
// containing a path separator) as Go plugins relative to
// NANOCHAT_KERNEL_PLUGIN_DIR and everything else from Units.
var DefaultLoader Loader = LoaderFunc(func(unit, entry string) (any, error) {
	if isPluginPath(unit) {
		return PluginLoader{Dir: envconfig.KernelPluginDir()}.Load(unit, entry)
	}
	return Units.Load(unit, entry)
})

func isPluginPath(unit string) bool {
	return strings.HasSuffix(unit, ".so") || strings.ContainsRune(unit, filepath.Separator) || strings.ContainsRune(unit, '/')
}
