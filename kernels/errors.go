package kernels

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a malformed or unresolvable symbolic
	// reference. It is never recovered from by the registry.
	ErrConfiguration = errors.New("kernel configuration error")

	// ErrKernelUnavailable is returned by the stubs when no kernel was
	// registered, no reference was configured and fallback is not allowed.
	ErrKernelUnavailable = errors.New("kernel not implemented")
)

// UnavailableError is the error of a stub kernel. It names every way a
// real kernel can be supplied and the option permitting fallback.
type UnavailableError struct {
	Kind Kind
}

func (e *UnavailableError) Error() string {
	k := e.Kind
	return fmt.Sprintf(
		"%s=true but no %s kernel is built. "+
			"Provide a custom kernel via %s='unit:entry' in the model config, "+
			"via the %s environment variable, or with %s(...). "+
			"To fall back to the reference path instead of failing, set %s=true (%s).",
		k.enableOption(), k.Name(),
		k.implOption(), k.implEnv(), k.registerFunc(),
		allowFallbackOption, allowFallbackEnv,
	)
}

func (e *UnavailableError) Unwrap() error {
	return ErrKernelUnavailable
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
