// notify.go - Einmalige Warnungen pro Schluessel
// Enthält: Notifier (HasWarned, MarkWarned, WarnOnce, Reset)

package kernels

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/emirpasic/gods/v2/sets/hashset"
)

// Notifier emits each warning key at most once until Reset.
type Notifier struct {
	mu     sync.Mutex
	warned *hashset.Set[string]
	logger *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{warned: hashset.New[string](), logger: logger}
}

func (n *Notifier) HasWarned(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.warned.Contains(key)
}

// MarkWarned records key and reports whether it was not recorded before.
func (n *Notifier) MarkWarned(key string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.warned.Contains(key) {
		return false
	}
	n.warned.Add(key)
	return true
}

// WarnOnce logs msg at warning level the first time key is seen.
func (n *Notifier) WarnOnce(key, msg string, args ...any) bool {
	if !n.MarkWarned(key) {
		return false
	}

	n.logger.Warn(msg, append([]any{"key", key}, args...)...)
	return true
}

// Keys returns the recorded keys in sorted order.
func (n *Notifier) Keys() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	keys := n.warned.Values()
	slices.Sort(keys)
	return keys
}

func (n *Notifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.warned.Clear()
}
