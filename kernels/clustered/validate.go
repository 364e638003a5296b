package clustered

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nanochat/nanochat/ml"
)

// ErrShape is returned for inputs that no attention path can accept.
var ErrShape = errors.New("clustered attention: invalid input")

func validate(q, k, v, mask ml.Tensor, enableGQA bool) error {
	if q == nil || k == nil || v == nil {
		return fmt.Errorf("%w: q, k and v are required", ErrShape)
	}

	qs, ks, vs := q.Shape(), k.Shape(), v.Shape()
	if len(qs) != 4 || len(ks) != 4 || len(vs) != 4 {
		return fmt.Errorf("%w: expected (B, H, T, D) tensors, got q=%v k=%v v=%v", ErrShape, qs, ks, vs)
	}

	if !slices.Equal(ks, vs) {
		return fmt.Errorf("%w: key %v and value %v shapes differ", ErrShape, ks, vs)
	}

	if qs[0] != ks[0] || qs[3] != ks[3] {
		return fmt.Errorf("%w: query %v and key %v disagree on batch or head dim", ErrShape, qs, ks)
	}

	if q.DType() != k.DType() || q.DType() != v.DType() {
		return fmt.Errorf("%w: mixed dtypes q=%v k=%v v=%v", ErrShape, q.DType(), k.DType(), v.DType())
	}

	if q.Device() != k.Device() || q.Device() != v.Device() {
		return fmt.Errorf("%w: inputs on different devices", ErrShape)
	}

	hq, hk := qs[1], ks[1]
	switch {
	case hq == 0 || hk == 0:
		return fmt.Errorf("%w: empty head dimension q=%d k=%d", ErrShape, hq, hk)
	case hq%hk != 0:
		return fmt.Errorf("%w: %d query heads are not a multiple of %d key/value heads", ErrShape, hq, hk)
	case hq != hk && !enableGQA:
		return fmt.Errorf("%w: %d query heads but %d key/value heads and grouped-query attention is disabled", ErrShape, hq, hk)
	}

	if mask != nil {
		if mask.DType() != ml.DTypeBool {
			return fmt.Errorf("%w: mask must be bool, got %v", ErrShape, mask.DType())
		}

		if !broadcastable(mask.Shape(), []int{qs[0], hq, qs[2], ks[2]}) {
			return fmt.Errorf("%w: mask %v is not broadcastable to (%d, %d, %d, %d)", ErrShape, mask.Shape(), qs[0], hq, qs[2], ks[2])
		}
	}

	return nil
}

func broadcastable(shape, target []int) bool {
	if len(shape) > len(target) {
		return false
	}

	offset := len(target) - len(shape)
	for i, d := range shape {
		if d != 1 && d != target[offset+i] {
			return false
		}
	}
	return true
}

// ineligible returns why the varlen kernel cannot serve the call, or ""
// if it can. Masks are not supported by the packed layout.
func ineligible(q, k, mask ml.Tensor) string {
	switch {
	case mask != nil:
		return "mask"
	case !q.Device().IsAccelerator():
		return "device"
	case !q.DType().IsReduced():
		return "dtype"
	case q.Dim(2) == 0 || k.Dim(2) == 0:
		return "empty"
	default:
		return ""
	}
}

// RepeatKV expands (B, Hk, T, D) to (B, Hk*n, T, D), repeating each head
// n times contiguously so query head i reads key/value head i/n.
func RepeatKV(ctx ml.Context, t ml.Tensor, n int) ml.Tensor {
	if n == 1 {
		return t
	}
	return t.RepeatInterleave(ctx, 1, n)
}
