// Package kernels resolves the callables behind the experimental custom
// kernels of the model: clustered attention and the persistent decode step.
//
// A kernel is supplied in one of three ways, in order of precedence:
//
//   - in-process registration with [Registry.RegisterAttention] or
//     [Registry.RegisterDecode]
//   - a symbolic reference "unit:entry" resolved through a [Loader]
//   - a caller supplied fallback, only when explicitly allowed
//
// If none applies, resolution returns a stub that fails with
// [ErrKernelUnavailable].
package kernels

import "log/slog"

// Kind names a kernel slot.
type Kind int

const (
	KindAttention Kind = iota
	KindDecode
)

// Kinds lists all kernel kinds in resolution-table order.
func Kinds() []Kind {
	return []Kind{KindAttention, KindDecode}
}

func (k Kind) String() string {
	switch k {
	case KindAttention:
		return "attention"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (k Kind) LogValue() slog.Value {
	return slog.StringValue(k.String())
}

// Name is the long name of the kernel, used in messages and warning keys.
func (k Kind) Name() string {
	switch k {
	case KindAttention:
		return "clustered_attention"
	case KindDecode:
		return "persistent_decode"
	default:
		return ""
	}
}

// DefaultEntry is the entry point assumed when a symbolic reference omits
// the ":entry" part. Unknown kinds have no default.
func (k Kind) DefaultEntry() string {
	switch k {
	case KindAttention:
		return "clustered_attention"
	case KindDecode:
		return "persistent_decode_step"
	default:
		return ""
	}
}

// fallbackKey is the de-duplication key of the degradation warning.
func (k Kind) fallbackKey() string {
	return k.Name() + "_fallback"
}

// option names of the model configuration, used in messages
func (k Kind) enableOption() string {
	return "use_" + k.Name() + "_kernel"
}

func (k Kind) implOption() string {
	return k.Name() + "_impl"
}

func (k Kind) implEnv() string {
	switch k {
	case KindAttention:
		return "NANOCHAT_CLUSTERED_ATTENTION_IMPL"
	case KindDecode:
		return "NANOCHAT_PERSISTENT_DECODE_IMPL"
	default:
		return ""
	}
}

func (k Kind) registerFunc() string {
	switch k {
	case KindAttention:
		return "Registry.RegisterAttention"
	case KindDecode:
		return "Registry.RegisterDecode"
	default:
		return ""
	}
}

const (
	allowFallbackOption = "allow_kernel_stub_fallback"
	allowFallbackEnv    = "NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK"
)
