// tensor.go - Tensor-Struktur und Basis-Methoden
// Enthält: Tensor struct, Shape, Floats, DType, Cast, Rundung auf 16-Bit-Typen

package host

import (
	"fmt"
	"log/slog"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"

	"github.com/nanochat/nanochat/ml"
)

// Tensor is an immutable row-major tensor held in Go memory. Floating point
// values are stored as float32 already rounded to the tensor's dtype, so
// every read observes the precision of the declared type.
type Tensor struct {
	dtype  ml.DType
	device ml.Device
	shape  []int

	f []float32
	i []int32
	b []bool
}

// LogValue gibt den Tensor als slog-Wert zurück
func (t *Tensor) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", t.dtype.String()),
		slog.Any("device", t.device),
		slog.Any("shape", t.shape),
	)
}

// Dim gibt die Größe einer Dimension zurück
func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

// Shape gibt eine Kopie der Form zurück
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

func (t *Tensor) DType() ml.DType {
	return t.dtype
}

func (t *Tensor) Device() ml.Device {
	return t.device
}

// Floats gibt die Daten als float32 zurück; Integer und Bool werden konvertiert
func (t *Tensor) Floats() []float32 {
	switch {
	case t.f != nil:
		return append([]float32(nil), t.f...)
	case t.i != nil:
		out := make([]float32, len(t.i))
		for n, v := range t.i {
			out[n] = float32(v)
		}
		return out
	default:
		out := make([]float32, len(t.b))
		for n, v := range t.b {
			if v {
				out[n] = 1
			}
		}
		return out
	}
}

func (t *Tensor) Ints() []int32 {
	switch {
	case t.i != nil:
		return append([]int32(nil), t.i...)
	case t.f != nil:
		out := make([]int32, len(t.f))
		for n, v := range t.f {
			out[n] = int32(v)
		}
		return out
	default:
		out := make([]int32, len(t.b))
		for n, v := range t.b {
			if v {
				out[n] = 1
			}
		}
		return out
	}
}

func (t *Tensor) Bools() []bool {
	if t.b != nil {
		return append([]bool(nil), t.b...)
	}

	out := make([]bool, t.size())
	if t.f != nil {
		for n, v := range t.f {
			out[n] = v != 0
		}
	} else {
		for n, v := range t.i {
			out[n] = v != 0
		}
	}
	return out
}

// Cast konvertiert den Tensor in einen anderen Datentyp
func (t *Tensor) Cast(ctx ml.Context, dtype ml.DType) ml.Tensor {
	if dtype == t.dtype {
		return t
	}

	out := &Tensor{dtype: dtype, device: t.device, shape: t.Shape()}
	switch {
	case dtype.IsFloat():
		out.f = round(dtype, t.Floats())
	case dtype == ml.DTypeI32:
		out.i = t.Ints()
	case dtype == ml.DTypeBool:
		out.b = t.Bools()
	default:
		panic(fmt.Sprintf("host: unsupported cast from %v to %v", t.dtype, dtype))
	}
	return out
}

func (t *Tensor) size() int {
	return elements(t.shape)
}

func elements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// round rundet float32-Werte in place auf die Genauigkeit von dtype
func round(dtype ml.DType, s []float32) []float32 {
	switch dtype {
	case ml.DTypeF16:
		for i, v := range s {
			s[i] = float16.Fromfloat32(v).Float32()
		}
	case ml.DTypeBF16:
		copy(s, bfloat16.DecodeFloat32(bfloat16.EncodeFloat32(s)))
	}
	return s
}
