// context.go - Context und Tensor Interfaces fuer ML-Operationen
// Dieses Modul definiert die Schnittstellen fuer Tensor-Operationen und Compute-Kontexte.
package ml

import "errors"

// ErrNoSDPBackend is returned by a DenseAttention implementation when none
// of the backends permitted by SDPBackends can serve the request.
var ErrNoSDPBackend = errors.New("no scaled dot product attention backend enabled")

// Context represents an execution context for tensor operations. Tensors
// created through a context are placed on the context's device.
type Context interface {
	Device() Device

	Empty(dtype DType, shape ...int) Tensor
	FromFloats(dtype DType, s []float32, shape ...int) Tensor
	FromInts(s []int32, shape ...int) Tensor
	FromBools(s []bool, shape ...int) Tensor

	// Arange creates a 1D int32 tensor with values within [start, stop) increased by step.
	Arange(start, stop, step int) Tensor
}

// Tensor represents a multi-dimensional array. Shapes are listed
// outermost dimension first, e.g. (Batch, Heads, SeqLen, HeadDim).
type Tensor interface {
	Dim(n int) int
	Shape() []int
	DType() DType
	Device() Device

	Floats() []float32
	Ints() []int32
	Bools() []bool

	Cast(ctx Context, dtype DType) Tensor

	// Reshape returns a tensor with the same elements in row-major order and
	// a new shape. A single -1 is inferred from the element count.
	Reshape(ctx Context, shape ...int) Tensor

	// Permute reorders dimensions so that output dimension i is input
	// dimension order[i].
	Permute(ctx Context, order ...int) Tensor
	Contiguous(ctx Context) Tensor

	// RepeatInterleave repeats every slice along dim n times in place, so
	// index i of the result maps to index i/n of the input.
	RepeatInterleave(ctx Context, dim, n int) Tensor
}

// SDPBackends selects which internal implementations a DenseAttention may
// choose from.
type SDPBackends struct {
	EnableFlash        bool
	EnableMemEfficient bool
	EnableMath         bool
}

// SDPOptions controls a dense scaled dot product attention call.
type SDPOptions struct {
	// Causal restricts query i to keys j <= i. Ignored when a mask is given.
	Causal bool

	// Scale multiplies the raw scores. Zero selects 1/sqrt(HeadDim).
	Scale float64

	Backends SDPBackends
}

// DenseAttention implements general scaled dot product attention over
// (B, H, T, D) tensors:
//
//	scores = q @ k^T * scale
//	scores[mask == false] = -inf   (or j > i when causal and mask == nil)
//	out = softmax(scores) @ v
//
// mask is an optional boolean keep-mask broadcastable to (B, H, T, Tk).
type DenseAttention interface {
	ScaledDotProductAttention(ctx Context, q, k, v, mask Tensor, opts SDPOptions) (Tensor, error)
}

// VarlenOptions are the named options of a variable-length attention call.
type VarlenOptions struct {
	DropoutP float32
	Causal   bool

	// NumSMClusters is only set for kernels that implement ClusterHinter
	// and report support for it.
	NumSMClusters *int
}

// VarlenAttention implements attention over a packed variable-length
// layout. q is (TotalQ, H, D), k and v are (TotalK, Hk, D). cuSeqlensQ and
// cuSeqlensK are int32 tensors of Batch+1 cumulative offsets into the
// packed dimension. The result is (TotalQ, H, D).
type VarlenAttention interface {
	VarlenAttention(ctx Context, q, k, v, cuSeqlensQ, cuSeqlensK Tensor, maxSeqlenQ, maxSeqlenK int, opts VarlenOptions) (Tensor, error)
}

// ClusterHinter is implemented by VarlenAttention kernels whose signature
// may accept a compute-cluster count.
type ClusterHinter interface {
	SupportsClusterHint() bool
}
