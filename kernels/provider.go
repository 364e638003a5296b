package kernels

import "log/slog"

// Provider identifies which source supplied a resolved kernel.
type Provider int

const (
	ProviderNone Provider = iota
	ProviderRegistered
	ProviderSymbolic
	ProviderFallback
	ProviderStub
)

func (p Provider) String() string {
	switch p {
	case ProviderRegistered:
		return "registered"
	case ProviderSymbolic:
		return "symbolic"
	case ProviderFallback:
		return "fallback"
	case ProviderStub:
		return "stub"
	default:
		return "none"
	}
}

func (p Provider) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

// Cached reports whether kernels from p are kept in the slot.
func (p Provider) Cached() bool {
	return p == ProviderRegistered || p == ProviderSymbolic
}

// KernelOptions are the per-kind settings of the model configuration.
type KernelOptions struct {
	// Enabled requests the custom kernel for this kind
	Enabled bool

	// Impl is an optional symbolic reference "unit:entry"
	Impl string

	// AllowFallback permits the reference implementation when no kernel
	// can be resolved
	AllowFallback bool
}

// Status describes one kernel slot.
type Status struct {
	Kind     Kind
	Provider Provider

	// Ref is the symbolic reference the slot was loaded from
	Ref string

	// Warned reports whether the degradation warning was emitted
	Warned bool
}
