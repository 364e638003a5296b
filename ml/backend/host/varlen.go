// varlen.go - Referenz-Kernel fuer Varlen-Attention im gepackten Layout
// Enthält: Varlen (ml.VarlenAttention, ml.ClusterHinter)

package host

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/nanochat/nanochat/ml"
)

var errDropout = errors.New("host: varlen attention does not implement dropout")

// Varlen is a reference implementation of ml.VarlenAttention. It walks
// the cumulative offsets and runs the same per-head attention as Dense, so
// its results match the dense path for uniform-length batches.
type Varlen struct{}

// SupportsClusterHint meldet, dass der Kernel num_sm_clusters annimmt
func (Varlen) SupportsClusterHint() bool {
	return true
}

func (Varlen) VarlenAttention(ctx ml.Context, q, k, v, cuSeqlensQ, cuSeqlensK ml.Tensor, maxSeqlenQ, maxSeqlenK int, opts ml.VarlenOptions) (ml.Tensor, error) {
	if opts.DropoutP != 0 {
		return nil, errDropout
	}

	if len(q.Shape()) != 3 || len(k.Shape()) != 3 || len(v.Shape()) != 3 {
		return nil, fmt.Errorf("host: varlen expects packed rank 3 inputs, got q=%v k=%v v=%v", q.Shape(), k.Shape(), v.Shape())
	}

	h, d := q.Dim(1), q.Dim(2)
	hk := k.Dim(1)
	if k.Dim(2) != d || hk == 0 || h%hk != 0 {
		return nil, fmt.Errorf("host: incompatible varlen shapes q=%v k=%v", q.Shape(), k.Shape())
	}

	cuQ, cuK := cuSeqlensQ.Ints(), cuSeqlensK.Ints()
	if len(cuQ) != len(cuK) || len(cuQ) < 1 {
		return nil, fmt.Errorf("host: mismatched cumulative offsets q=%v k=%v", cuQ, cuK)
	}
	if int(cuQ[len(cuQ)-1]) != q.Dim(0) || int(cuK[len(cuK)-1]) != k.Dim(0) {
		return nil, fmt.Errorf("host: cumulative offsets do not cover packed inputs")
	}

	if opts.NumSMClusters != nil {
		slog.Debug("host varlen ignores cluster hint", "num_sm_clusters", *opts.NumSMClusters)
	}

	qf, kf, vf := q.Floats(), k.Floats(), v.Floats()
	out := make([]float32, len(qf))
	scale := defaultScale(0, d)
	group := h / hk

	var keep func(i, j int) bool
	if opts.Causal {
		keep = func(i, j int) bool { return j <= i }
	}

	for b := range len(cuQ) - 1 {
		qs, qe := int(cuQ[b]), int(cuQ[b+1])
		ks, ke := int(cuK[b]), int(cuK[b+1])
		if qe < qs || ke < ks || qe-qs > maxSeqlenQ || ke-ks > maxSeqlenK {
			return nil, fmt.Errorf("host: sequence %d spans [%d,%d) x [%d,%d) outside max lengths %d/%d", b, qs, qe, ks, ke, maxSeqlenQ, maxSeqlenK)
		}

		for hi := range h {
			qOff := (qs*h + hi) * d
			kOff := (ks*hk + hi/group) * d

			attendHead(
				packedRows(qf, qOff, qe-qs, d, h*d),
				packedRows(kf, kOff, ke-ks, d, hk*d),
				packedRows(vf, kOff, ke-ks, d, hk*d),
				packedRows(out, qOff, qe-qs, d, h*d),
				scale,
				keep,
			)
		}
	}

	return &Tensor{
		dtype:  q.DType(),
		device: q.Device(),
		shape:  q.Shape(),
		f:      round(q.DType(), out),
	}, nil
}

// packedRows adressiert die Zeilen eines Heads im gepackten (N, H, D) Layout
func packedRows(data []float32, off, rows, cols, stride int) blas32.General {
	if rows == 0 {
		return blas32.General{Rows: 0, Cols: cols, Stride: stride}
	}
	return blas32.General{Rows: rows, Cols: cols, Stride: stride, Data: data[off : off+(rows-1)*stride+cols]}
}
