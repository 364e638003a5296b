// registry.go - Kernel-Registry mit Slots pro Kernel-Art
// Enthält: Registry, Register*/Resolve*/Select*, Reset, Status

package kernels

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// slot holds at most one resolved kernel. provider records the last
// resolution outcome, which for fallback and stub is not cached.
type slot[F any] struct {
	mu       sync.Mutex
	fn       F
	set      bool
	provider Provider
	ref      string
}

func (s *slot[F]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero F
	s.fn, s.set, s.provider, s.ref = zero, false, ProviderNone, ""
}

// Registry owns the attention and decode kernel slots. The zero value is
// not usable; create registries with New.
type Registry struct {
	id       string
	loader   Loader
	logger   *slog.Logger
	notifier *Notifier

	attention slot[AttentionFunc]
	decode    slot[DecodeFunc]

	loads atomic.Int64
}

type Option func(*Registry)

// WithLoader replaces DefaultLoader for symbolic references.
func WithLoader(l Loader) Option {
	return func(r *Registry) {
		r.loader = l
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// New returns an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		id:     uuid.NewString(),
		loader: DefaultLoader,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.logger = r.logger.With("registry", r.id)
	r.notifier = NewNotifier(r.logger)
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry { return New() })

// Default returns the process registry.
func Default() *Registry {
	return defaultRegistry()
}

// ID identifies the registry in log output.
func (r *Registry) ID() string {
	return r.id
}

// Notifier returns the de-duplicating notifier of the registry.
func (r *Registry) Notifier() *Notifier {
	return r.notifier
}

// Loads counts how often the loader has been invoked.
func (r *Registry) Loads() int64 {
	return r.loads.Load()
}

// RegisterAttention installs fn as the attention kernel, replacing any
// previous resolution. fn is not validated; a nil fn empties the slot.
func (r *Registry) RegisterAttention(fn AttentionFunc) {
	if fn == nil {
		r.attention.clear()
		return
	}
	register(r, &r.attention, KindAttention, fn)
}

// RegisterDecode installs fn as the decode kernel, replacing any previous
// resolution. fn is not validated; a nil fn empties the slot.
func (r *Registry) RegisterDecode(fn DecodeFunc) {
	if fn == nil {
		r.decode.clear()
		return
	}
	register(r, &r.decode, KindDecode, fn)
}

// ResolveAttention returns the attention kernel to use:
//
//  1. the cached kernel of the slot, from registration or an earlier load
//  2. the kernel loaded from ref, which is then cached
//  3. fallback, if non-nil and allowFallback is set (warned once, not cached)
//  4. AttentionStub
//
// A ref that cannot be parsed or loaded returns an ErrConfiguration error.
func (r *Registry) ResolveAttention(fallback AttentionFunc, ref string, allowFallback bool) (AttentionFunc, error) {
	return resolve(r, &r.attention, KindAttention, ref, fallback, fallback != nil && allowFallback, AttentionStub, asAttention)
}

// ResolveDecode mirrors ResolveAttention for the decode kernel.
func (r *Registry) ResolveDecode(fallback DecodeFunc, ref string, allowFallback bool) (DecodeFunc, error) {
	return resolve(r, &r.decode, KindDecode, ref, fallback, fallback != nil && allowFallback, DecodeStub, asDecode)
}

// SelectAttention is the entry point of a model forward pass: a disabled
// kernel returns fallback without consulting the registry.
func (r *Registry) SelectAttention(opts KernelOptions, fallback AttentionFunc) (AttentionFunc, error) {
	if !opts.Enabled {
		return fallback, nil
	}
	return r.ResolveAttention(fallback, opts.Impl, opts.AllowFallback)
}

func (r *Registry) SelectDecode(opts KernelOptions, fallback DecodeFunc) (DecodeFunc, error) {
	if !opts.Enabled {
		return fallback, nil
	}
	return r.ResolveDecode(fallback, opts.Impl, opts.AllowFallback)
}

// Reset clears every slot and every emitted warning key.
func (r *Registry) Reset() {
	r.attention.clear()
	r.decode.clear()
	r.notifier.Reset()
	r.logger.Debug("kernel registry reset")
}

// Status reports the slots in Kinds order.
func (r *Registry) Status() []Status {
	return []Status{
		status(&r.attention, KindAttention, r.notifier),
		status(&r.decode, KindDecode, r.notifier),
	}
}

func status[F any](s *slot[F], kind Kind, n *Notifier) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Kind:     kind,
		Provider: s.provider,
		Ref:      s.ref,
		Warned:   n.HasWarned(kind.fallbackKey()),
	}
}

func register[F any](r *Registry, s *slot[F], kind Kind, fn F) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fn, s.set, s.provider, s.ref = fn, true, ProviderRegistered, ""
	r.logger.Debug("kernel registered", "kind", kind)
}

func resolve[F any](r *Registry, s *slot[F], kind Kind, ref string, fallback F, useFallback bool, stub F, convert func(any) (F, bool)) (F, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.set {
		return s.fn, nil
	}

	if ref != "" {
		fn, err := load(r, kind, ref, convert)
		if err != nil {
			var zero F
			return zero, err
		}

		s.fn, s.set, s.provider, s.ref = fn, true, ProviderSymbolic, ref
		r.logger.Info("kernel loaded", "kind", kind, "ref", ref)
		return fn, nil
	}

	if useFallback {
		r.notifier.WarnOnce(kind.fallbackKey(), fmt.Sprintf(
			"%s=true but no custom kernel registered; falling back to the reference implementation because %s=true",
			kind.enableOption(), allowFallbackOption,
		), "kind", kind)
		s.provider = ProviderFallback
		return fallback, nil
	}

	s.provider = ProviderStub
	return stub, nil
}

func load[F any](r *Registry, kind Kind, ref string, convert func(any) (F, bool)) (F, error) {
	var zero F

	parsed, err := ParseRef(ref, kind)
	if err != nil {
		return zero, err
	}

	r.loads.Add(1)
	sym, err := r.loader.Load(parsed.Unit, parsed.Entry)
	if err != nil {
		return zero, fmt.Errorf("%w: loading %s kernel %s: %w", ErrConfiguration, kind, parsed, err)
	}

	fn, ok := convert(sym)
	if !ok {
		return zero, configError("%s is a %T, not a %s kernel", parsed, sym, kind)
	}

	return fn, nil
}
