// Package clustered implements clustered attention: batched multi-head
// attention that runs an accelerated variable-length kernel when the
// inputs allow it and a dense attention primitive otherwise.
//
// The accelerated path is optional. Any failure of it, including a panic
// inside the kernel, silently falls through to the dense path, so its
// presence never affects correctness.
package clustered

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/logutil"
	"github.com/nanochat/nanochat/ml"
)

// fallbackBackends disables flash for the dense path; it cannot express
// arbitrary boolean masks.
var fallbackBackends = ml.SDPBackends{
	EnableFlash:        false,
	EnableMemEfficient: true,
	EnableMath:         true,
}

// Engine dispatches clustered attention calls.
type Engine struct {
	dense  ml.DenseAttention
	varlen ml.VarlenAttention
	logger *slog.Logger

	accelerated atomic.Int64
	fallbacks   atomic.Int64
}

var _ kernels.AttentionFunc = (*Engine)(nil).Attention

type Option func(*Engine)

// WithVarlen installs the accelerated variable-length kernel. Without one
// every call takes the dense path.
func WithVarlen(k ml.VarlenAttention) Option {
	return func(e *Engine) {
		e.varlen = k
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// Unit is the catalog unit the engine is exported under.
const Unit = "clustered"

// Export adds the engine to c as Unit:clustered_attention, so symbolic
// references to "clustered" resolve to it.
func (e *Engine) Export(c *kernels.Catalog) {
	c.Add(Unit, kernels.KindAttention.DefaultEntry(), kernels.AttentionFunc(e.Attention))
}

// New returns an engine falling back to dense.
func New(dense ml.DenseAttention, opts ...Option) *Engine {
	e := &Engine{dense: dense, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats are call counters per path.
type Stats struct {
	Accelerated int64
	Fallback    int64
}

func (e *Engine) Stats() Stats {
	return Stats{
		Accelerated: e.accelerated.Load(),
		Fallback:    e.fallbacks.Load(),
	}
}

// Attention computes attention of q (B, Hq, T, D) over k and v
// (B, Hk, Tk, D). With opts.EnableGQA the key/value heads are repeated to
// Hq before any path is chosen. An explicit mask always takes the dense
// path and replaces the causal restriction.
func (e *Engine) Attention(ctx ml.Context, q, k, v, mask ml.Tensor, opts kernels.AttentionOptions) (ml.Tensor, error) {
	if err := validate(q, k, v, mask, opts.EnableGQA); err != nil {
		return nil, err
	}

	if hq, hk := q.Dim(1), k.Dim(1); opts.EnableGQA && hq != hk {
		k = RepeatKV(ctx, k, hq/hk)
		v = RepeatKV(ctx, v, hq/hk)
	}

	if reason := ineligible(q, k, mask); reason != "" {
		e.trace("clustered attention not eligible for varlen kernel", "reason", reason)
	} else {
		switch res := e.accelerate(ctx, q, k, v, opts); res.Status {
		case Success:
			e.accelerated.Add(1)
			return res.Output, nil
		default:
			e.trace("varlen kernel did not produce a result", "status", res.Status, "error", res.Err)
		}
	}

	e.fallbacks.Add(1)
	return e.dense.ScaledDotProductAttention(ctx, q, k, v, mask, ml.SDPOptions{
		Causal:   opts.Causal && mask == nil,
		Backends: fallbackBackends,
	})
}

func (e *Engine) trace(msg string, args ...any) {
	logutil.Log(context.TODO(), e.logger, logutil.LevelTrace, msg, args...)
}
