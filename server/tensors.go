// tensors.go - Konvertierung zwischen API-Payloads und Tensoren

package server

import (
	"errors"
	"fmt"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/ml"
)

var errPayload = errors.New("invalid tensor payload")

func requestTensors(ctx ml.Context, req *api.AttentionRequest) (q, k, v, mask ml.Tensor, err error) {
	if q, err = tensor(ctx, "q", req.Q, ml.DTypeF32); err != nil {
		return
	}

	// k und v uebernehmen den dtype von q, wenn keiner angegeben ist
	if k, err = tensor(ctx, "k", req.K, q.DType()); err != nil {
		return
	}
	if v, err = tensor(ctx, "v", req.V, q.DType()); err != nil {
		return
	}

	if req.Mask != nil {
		mask, err = tensor(ctx, "mask", *req.Mask, ml.DTypeBool)
	}
	return
}

func tensor(ctx ml.Context, name string, p api.TensorPayload, dtype ml.DType) (ml.Tensor, error) {
	if p.DType != "" {
		dtype = ml.ParseDType(p.DType)
	}

	n := 1
	for _, d := range p.Shape {
		if d < 0 {
			return nil, fmt.Errorf("%w: %s has negative dimension in %v", errPayload, name, p.Shape)
		}
		n *= d
	}

	if len(p.Shape) == 0 || n != len(p.Data) {
		return nil, fmt.Errorf("%w: %s has %d values for shape %v", errPayload, name, len(p.Data), p.Shape)
	}

	switch {
	case dtype.IsFloat():
		return ctx.FromFloats(dtype, p.Data, p.Shape...), nil
	case dtype == ml.DTypeBool:
		b := make([]bool, len(p.Data))
		for i, f := range p.Data {
			b[i] = f != 0
		}
		return ctx.FromBools(b, p.Shape...), nil
	default:
		return nil, fmt.Errorf("%w: %s has unsupported dtype %q", errPayload, name, p.DType)
	}
}

func payload(t ml.Tensor) api.TensorPayload {
	return api.TensorPayload{
		Shape: t.Shape(),
		DType: t.DType().String(),
		Data:  t.Floats(),
	}
}
