// sdpa.go - Dense Scaled Dot-Product Attention
// Enthält: Dense (ml.DenseAttention), Masken-Broadcasting

package host

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/nanochat/nanochat/ml"
)

// Dense is the host implementation of ml.DenseAttention. It only has a
// math backend.
type Dense struct{}

// ScaledDotProductAttention führt Scaled Dot-Product Attention durch.
// q ist (B, H, T, D), k und v sind (B, Hk, Tk, D) mit H % Hk == 0.
func (Dense) ScaledDotProductAttention(ctx ml.Context, q, k, v, mask ml.Tensor, opts ml.SDPOptions) (ml.Tensor, error) {
	if !opts.Backends.EnableMath {
		return nil, fmt.Errorf("host: %w (math backend disabled)", ml.ErrNoSDPBackend)
	}

	if len(q.Shape()) != 4 || len(k.Shape()) != 4 || len(v.Shape()) != 4 {
		return nil, fmt.Errorf("host: sdpa expects rank 4 inputs, got q=%v k=%v v=%v", q.Shape(), k.Shape(), v.Shape())
	}

	b, h, t, d := q.Dim(0), q.Dim(1), q.Dim(2), q.Dim(3)
	hk, tk := k.Dim(1), k.Dim(2)
	if k.Dim(0) != b || k.Dim(3) != d || !slices.Equal(k.Shape(), v.Shape()) || hk == 0 || h%hk != 0 {
		return nil, fmt.Errorf("host: incompatible sdpa shapes q=%v k=%v v=%v", q.Shape(), k.Shape(), v.Shape())
	}

	var keep func(bi, hi, i, j int) bool
	switch {
	case mask != nil:
		m, err := broadcastMask(mask, b, h, t, tk)
		if err != nil {
			return nil, err
		}
		keep = m
	case opts.Causal:
		keep = func(_, _, i, j int) bool { return j <= i }
	}

	qf, kf, vf := q.Floats(), k.Floats(), v.Floats()
	out := make([]float32, b*h*t*d)
	scale := defaultScale(opts.Scale, d)
	group := h / hk

	for bi := range b {
		for hi := range h {
			qOff := ((bi*h + hi) * t) * d
			kOff := ((bi*hk + hi/group) * tk) * d

			var rowKeep func(i, j int) bool
			if keep != nil {
				rowKeep = func(i, j int) bool { return keep(bi, hi, i, j) }
			}

			attendHead(
				blas32.General{Rows: t, Cols: d, Stride: d, Data: qf[qOff : qOff+t*d]},
				blas32.General{Rows: tk, Cols: d, Stride: d, Data: kf[kOff : kOff+tk*d]},
				blas32.General{Rows: tk, Cols: d, Stride: d, Data: vf[kOff : kOff+tk*d]},
				blas32.General{Rows: t, Cols: d, Stride: d, Data: out[qOff : qOff+t*d]},
				scale,
				rowKeep,
			)
		}
	}

	return &Tensor{
		dtype:  q.DType(),
		device: q.Device(),
		shape:  []int{b, h, t, d},
		f:      round(q.DType(), out),
	}, nil
}

// broadcastMask liefert eine Lookup-Funktion fuer eine boolesche Maske,
// die rechtsbuendig auf (B, H, T, Tk) gebroadcastet wird
func broadcastMask(mask ml.Tensor, b, h, t, tk int) (func(bi, hi, i, j int) bool, error) {
	if mask.DType() != ml.DTypeBool {
		return nil, fmt.Errorf("host: attention mask must be bool, got %v", mask.DType())
	}

	target := []int{b, h, t, tk}
	shape := mask.Shape()
	if len(shape) > len(target) {
		return nil, fmt.Errorf("host: mask shape %v has too many dimensions", shape)
	}

	full := make([]int, len(target))
	for i := range full {
		full[i] = 1
	}
	copy(full[len(full)-len(shape):], shape)

	strides := rowMajorStrides(full)
	for i, d := range full {
		switch d {
		case target[i]:
		case 1:
			strides[i] = 0
		default:
			return nil, fmt.Errorf("host: mask shape %v is not broadcastable to %v", shape, target)
		}
	}

	data := mask.Bools()
	return func(bi, hi, i, j int) bool {
		return data[bi*strides[0]+hi*strides[1]+i*strides[2]+j*strides[3]]
	}, nil
}
