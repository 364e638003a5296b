// tensor_shape.go - Shape-Operationen für Tensoren
// Enthält: Reshape, Permute, Contiguous, RepeatInterleave
// Permute und RepeatInterleave laufen über pdevine/tensor

package host

import (
	"fmt"
	"slices"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"

	"github.com/nanochat/nanochat/ml"
)

// Reshape ändert die Form ohne Datenkopie; ein -1 wird aus der Elementzahl abgeleitet
func (t *Tensor) Reshape(ctx ml.Context, shape ...int) ml.Tensor {
	shape = slices.Clone(shape)
	if i := slices.Index(shape, -1); i >= 0 {
		shape[i] = 1
		shape[i] = t.size() / elements(shape)
	}

	if elements(shape) != t.size() {
		panic(fmt.Sprintf("host: cannot reshape %v into %v", t.shape, shape))
	}

	return &Tensor{dtype: t.dtype, device: t.device, shape: shape, f: t.f, i: t.i, b: t.b}
}

// Permute ordnet die Dimensionen um und materialisiert das Ergebnis
func (t *Tensor) Permute(ctx ml.Context, order ...int) ml.Tensor {
	if len(order) != len(t.shape) {
		panic(fmt.Sprintf("host: permute order %v does not match rank %d", order, len(t.shape)))
	}

	shape := make([]int, len(order))
	for i, o := range order {
		shape[i] = t.shape[o]
	}

	// Identitaet und leere Tensoren brauchen keine Umordnung
	if t.size() == 0 || isIdentity(order) {
		return t.withShape(shape)
	}

	out, err := tensor.Transpose(t.dense(), order...)
	if err != nil {
		panic(fmt.Sprintf("host: permute %v by %v: %v", t.shape, order, err))
	}
	return t.fromDense(out)
}

// Contiguous ist ein No-Op, da alle Host-Tensoren zusammenhängend sind
func (t *Tensor) Contiguous(ctx ml.Context) ml.Tensor {
	return t
}

func (t *Tensor) RepeatInterleave(ctx ml.Context, dim, n int) ml.Tensor {
	if n < 1 {
		panic(fmt.Sprintf("host: invalid repeat count %d", n))
	}
	if n == 1 {
		return t
	}

	if t.size() == 0 {
		shape := t.Shape()
		shape[dim] *= n
		return t.withShape(shape)
	}

	out, err := tensor.Repeat(t.dense(), dim, n)
	if err != nil {
		panic(fmt.Sprintf("host: repeat %v along %d: %v", t.shape, dim, err))
	}
	return t.fromDense(out)
}

// dense verpackt eine Kopie der Daten als pdevine-Tensor
func (t *Tensor) dense() *tensor.Dense {
	var backing any
	switch {
	case t.f != nil:
		backing = slices.Clone(t.f)
	case t.i != nil:
		backing = slices.Clone(t.i)
	default:
		backing = slices.Clone(t.b)
	}
	return tensor.New(tensor.WithShape(t.shape...), tensor.WithBacking(backing))
}

// fromDense liest das Ergebnis einer pdevine-Operation zurück
func (t *Tensor) fromDense(d tensor.Tensor) *Tensor {
	m, ok := tensor.Materialize(d).(*tensor.Dense)
	if !ok {
		panic(fmt.Sprintf("host: unexpected tensor type %T", d))
	}

	out := &Tensor{dtype: t.dtype, device: t.device, shape: slices.Clone([]int(m.Shape()))}
	if err := m.Reshape(m.Shape().TotalSize()); err != nil {
		panic(fmt.Sprintf("host: flatten %v: %v", out.shape, err))
	}

	var err error
	switch {
	case t.f != nil:
		out.f, err = native.VectorF32(m)
	case t.i != nil:
		out.i, err = native.VectorI32(m)
	default:
		out.b, err = native.VectorB(m)
	}
	if err != nil {
		panic(fmt.Sprintf("host: read %v: %v", out.shape, err))
	}
	return out
}

// withShape kopiert die Daten in einen Tensor der Form shape
func (t *Tensor) withShape(shape []int) *Tensor {
	return &Tensor{
		dtype:  t.dtype,
		device: t.device,
		shape:  shape,
		f:      slices.Clone(t.f),
		i:      slices.Clone(t.i),
		b:      slices.Clone(t.b),
	}
}

func isIdentity(order []int) bool {
	for i, o := range order {
		if i != o {
			return false
		}
	}
	return true
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
