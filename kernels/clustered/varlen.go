// varlen.go - Beschleunigter Pfad ueber das gepackte Varlen-Layout
// Enthält: Result-Typ, accelerate, CumulativeOffsets, Flatten/Unflatten

package clustered

import (
	"fmt"
	"log/slog"

	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/ml"
)

// Status classifies the outcome of the accelerated path.
type Status int

const (
	Success Status = iota
	Unavailable
	TransientFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Unavailable:
		return "unavailable"
	case TransientFailure:
		return "transient_failure"
	default:
		return "unknown"
	}
}

func (s Status) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

// Result is the outcome of one accelerated attempt. Output is only set on
// Success and Err only on TransientFailure.
type Result struct {
	Status Status
	Output ml.Tensor
	Err    error
}

// accelerate runs the varlen kernel on q, k, v with matching head counts.
func (e *Engine) accelerate(ctx ml.Context, q, k, v ml.Tensor, opts kernels.AttentionOptions) (res Result) {
	if e.varlen == nil {
		return Result{Status: Unavailable}
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Status: TransientFailure, Err: fmt.Errorf("varlen kernel panic: %v", p)}
		}
	}()

	b, h, t, d := q.Dim(0), q.Dim(1), q.Dim(2), q.Dim(3)
	tk := k.Dim(2)

	vopts := ml.VarlenOptions{DropoutP: 0, Causal: opts.Causal}
	if opts.NumSMClusters > 0 {
		if hinter, ok := e.varlen.(ml.ClusterHinter); ok && hinter.SupportsClusterHint() {
			n := opts.NumSMClusters
			vopts.NumSMClusters = &n
		}
	}

	out, err := e.varlen.VarlenAttention(ctx,
		Flatten(ctx, q), Flatten(ctx, k), Flatten(ctx, v),
		CumulativeOffsets(ctx, b, t), CumulativeOffsets(ctx, b, tk),
		t, tk, vopts,
	)
	switch {
	case err != nil:
		return Result{Status: TransientFailure, Err: err}
	case out == nil:
		return Result{Status: Unavailable}
	}

	if shape := out.Shape(); len(shape) != 3 || shape[0] != b*t || shape[1] != h || shape[2] != d {
		return Result{Status: TransientFailure, Err: fmt.Errorf("varlen kernel returned shape %v, want [%d %d %d]", shape, b*t, h, d)}
	}

	return Result{Status: Success, Output: Unflatten(ctx, out, b, t)}
}

// Flatten packs (B, H, T, D) into (B*T, H, D).
func Flatten(ctx ml.Context, t ml.Tensor) ml.Tensor {
	b, h, s, d := t.Dim(0), t.Dim(1), t.Dim(2), t.Dim(3)
	return t.Permute(ctx, 0, 2, 1, 3).Contiguous(ctx).Reshape(ctx, b*s, h, d)
}

// Unflatten is the inverse of Flatten for a batch of b sequences of length s.
func Unflatten(ctx ml.Context, t ml.Tensor, b, s int) ml.Tensor {
	h, d := t.Dim(1), t.Dim(2)
	return t.Reshape(ctx, b, s, h, d).Permute(ctx, 0, 2, 1, 3).Contiguous(ctx)
}

// CumulativeOffsets returns the b+1 sequence boundaries of a packed batch
// in which every sequence has length seqLen: 0, seqLen, ..., b*seqLen.
// seqLen must be positive.
func CumulativeOffsets(ctx ml.Context, b, seqLen int) ml.Tensor {
	return ctx.Arange(0, (b+1)*seqLen, seqLen)
}
