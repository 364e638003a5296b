// dump.go - Tensor-Inhalte als lesbarer Text
// Wird von `nanochat attention --dump` fuer die Ausgabe verwendet.
package ml

import (
	"strconv"
	"strings"
)

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places of float values.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold sets the element count up to which the whole tensor is
// printed. Larger tensors only show the edges of each dimension.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems sets the number of elements printed at the beginning
// and end of each dimension of a large tensor.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// Dump converts a tensor to a nested, row-major string representation.
func Dump(t Tensor, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	shape := t.Shape()
	n := 1
	for _, d := range shape {
		n *= d
	}

	items := opts.EdgeItems
	if n <= opts.Threshold {
		items = n
	}

	switch dtype := t.DType(); {
	case dtype.IsFloat():
		return dump(shape, t.Floats(), items, func(f float32) string {
			return strconv.FormatFloat(float64(f), 'f', opts.Precision, 32)
		})
	case dtype == DTypeI32:
		return dump(shape, t.Ints(), items, func(i int32) string {
			return strconv.FormatInt(int64(i), 10)
		})
	case dtype == DTypeBool:
		return dump(shape, t.Bools(), items, strconv.FormatBool)
	default:
		return "<unsupported>"
	}
}

func dump[E any](shape []int, s []E, items int, fn func(E) string) string {
	if len(shape) == 0 {
		if len(s) == 0 {
			return "[]"
		}
		return fn(s[0])
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}

	var sb strings.Builder
	var f func(dim, offset int)
	f = func(dim, offset int) {
		prefix := strings.Repeat(" ", dim+1)
		sb.WriteString("[")
		defer sb.WriteString("]")

		size := shape[dim]
		for i := 0; i < size; i++ {
			if i >= items && i < size-items {
				sb.WriteString("...")
				// weiter mit dem ersten Element des Endes
				i = size - items - 1
			} else if dim < len(shape)-1 {
				f(dim+1, offset+i*strides[dim])
			} else {
				text := fn(s[offset+i])
				if len(text) > 0 && text[0] != '-' {
					sb.WriteString(" ")
				}
				sb.WriteString(text)
			}

			if i < size-1 {
				sb.WriteString(",")
				if dim < len(shape)-1 {
					sb.WriteString(strings.Repeat("\n", len(shape)-1-dim))
					sb.WriteString(prefix)
				} else {
					sb.WriteString(" ")
				}
			}
		}
	}
	f(0, 0)

	return sb.String()
}
