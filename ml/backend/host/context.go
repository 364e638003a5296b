// context.go - Host-Kontext fuer Tensor-Erzeugung
// Enthält: Context struct, Empty, FromFloats, FromInts, FromBools, Arange

package host

import (
	"fmt"

	"github.com/nanochat/nanochat/ml"
)

// Context creates tensors labeled with the device of its backend.
type Context struct {
	device ml.Device
}

// NewContext returns a context whose tensors report device. This is
// mostly useful in tests that need inputs on a particular device.
func NewContext(device ml.Device) *Context {
	if device == "" {
		device = ml.DeviceCPU
	}
	return &Context{device: device}
}

func (c *Context) Device() ml.Device {
	return c.device
}

func (c *Context) Empty(dtype ml.DType, shape ...int) ml.Tensor {
	t := &Tensor{dtype: dtype, device: c.device, shape: append([]int(nil), shape...)}
	switch {
	case dtype.IsFloat():
		t.f = make([]float32, elements(shape))
	case dtype == ml.DTypeI32:
		t.i = make([]int32, elements(shape))
	case dtype == ml.DTypeBool:
		t.b = make([]bool, elements(shape))
	default:
		panic(fmt.Sprintf("host: unsupported dtype %v", dtype))
	}
	return t
}

// FromFloats kopiert s und rundet auf die Genauigkeit von dtype
func (c *Context) FromFloats(dtype ml.DType, s []float32, shape ...int) ml.Tensor {
	if !dtype.IsFloat() {
		panic(fmt.Sprintf("host: FromFloats requires a float dtype, got %v", dtype))
	}
	checkSize(len(s), shape)

	return &Tensor{
		dtype:  dtype,
		device: c.device,
		shape:  append([]int(nil), shape...),
		f:      round(dtype, append([]float32(nil), s...)),
	}
}

func (c *Context) FromInts(s []int32, shape ...int) ml.Tensor {
	checkSize(len(s), shape)
	return &Tensor{
		dtype:  ml.DTypeI32,
		device: c.device,
		shape:  append([]int(nil), shape...),
		i:      append([]int32(nil), s...),
	}
}

func (c *Context) FromBools(s []bool, shape ...int) ml.Tensor {
	checkSize(len(s), shape)
	return &Tensor{
		dtype:  ml.DTypeBool,
		device: c.device,
		shape:  append([]int(nil), shape...),
		b:      append([]bool(nil), s...),
	}
}

// Arange erstellt einen int32-Tensor mit Werten in [start, stop)
func (c *Context) Arange(start, stop, step int) ml.Tensor {
	if step <= 0 {
		panic(fmt.Sprintf("host: invalid arange step %d", step))
	}

	var s []int32
	for v := start; v < stop; v += step {
		s = append(s, int32(v))
	}
	return c.FromInts(s, len(s))
}

func checkSize(n int, shape []int) {
	if n != elements(shape) {
		panic(fmt.Sprintf("host: %d values do not fit shape %v", n, shape))
	}
}
