package kernels

import "strings"

// Ref is a parsed symbolic kernel reference of the form "unit:entry".
type Ref struct {
	Unit  string
	Entry string
}

func (r Ref) String() string {
	return r.Unit + ":" + r.Entry
}

// ParseRef splits s on the first ':'. A missing entry is replaced with the
// default entry of kind; it is an error if kind has none or the unit is
// empty.
func ParseRef(s string, kind Kind) (Ref, error) {
	unit, entry, _ := strings.Cut(strings.TrimSpace(s), ":")
	if entry == "" {
		entry = kind.DefaultEntry()
	}

	if unit == "" || entry == "" {
		return Ref{}, configError("%q must be of form 'unit:entry'", s)
	}

	return Ref{Unit: unit, Entry: entry}, nil
}
