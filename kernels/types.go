// types.go - Signaturen der Kernel-Slots und Stubs
// Enthält: AttentionFunc, DecodeFunc, AttentionStub, DecodeStub

package kernels

import "github.com/nanochat/nanochat/ml"

// AttentionOptions are the scalar parameters of a clustered attention call.
type AttentionOptions struct {
	// Causal restricts attention to non-future positions when no mask is given
	Causal bool

	// NumSMClusters spreads identical work over this many compute-cluster
	// groups. Zero means no hint.
	NumSMClusters int

	// EnableGQA permits fewer key/value heads than query heads
	EnableGQA bool
}

// AttentionFunc computes attention for q (B, Hq, T, D) against k and v
// (B, Hk, Tk, D). mask is an optional boolean keep-mask broadcastable to
// (B, Hq, T, Tk).
type AttentionFunc func(ctx ml.Context, q, k, v, mask ml.Tensor, opts AttentionOptions) (ml.Tensor, error)

// KVCache is the key/value cache a decode kernel reads and extends.
type KVCache interface {
	// Len is the number of cached positions
	Len() int
}

// DecodeModel is the model a decode kernel steps.
type DecodeModel interface {
	Forward(ctx ml.Context, ids ml.Tensor, cache KVCache, attentionMask ml.Tensor) (ml.Tensor, error)
}

// DecodeState is the result of one incremental decode step.
type DecodeState struct {
	Logits ml.Tensor
	Cache  KVCache
}

// DecodeFunc runs one incremental generation step for ids against cache.
type DecodeFunc func(ctx ml.Context, model DecodeModel, ids ml.Tensor, cache KVCache, attentionMask, tokenMask ml.Tensor) (DecodeState, error)

// AttentionStub is resolved when no attention kernel is available.
func AttentionStub(ml.Context, ml.Tensor, ml.Tensor, ml.Tensor, ml.Tensor, AttentionOptions) (ml.Tensor, error) {
	return nil, &UnavailableError{Kind: KindAttention}
}

// DecodeStub is resolved when no decode kernel is available.
func DecodeStub(ml.Context, DecodeModel, ml.Tensor, KVCache, ml.Tensor, ml.Tensor) (DecodeState, error) {
	return DecodeState{}, &UnavailableError{Kind: KindDecode}
}

// asAttention converts a loaded symbol into an AttentionFunc. Plugin
// lookups of function variables yield pointers, so both forms are accepted.
func asAttention(sym any) (AttentionFunc, bool) {
	switch fn := sym.(type) {
	case AttentionFunc:
		return fn, fn != nil
	case func(ml.Context, ml.Tensor, ml.Tensor, ml.Tensor, ml.Tensor, AttentionOptions) (ml.Tensor, error):
		return fn, fn != nil
	case *AttentionFunc:
		if fn != nil {
			return asAttention(*fn)
		}
	case *func(ml.Context, ml.Tensor, ml.Tensor, ml.Tensor, ml.Tensor, AttentionOptions) (ml.Tensor, error):
		if fn != nil {
			return asAttention(*fn)
		}
	}
	return nil, false
}

func asDecode(sym any) (DecodeFunc, bool) {
	switch fn := sym.(type) {
	case DecodeFunc:
		return fn, fn != nil
	case func(ml.Context, DecodeModel, ml.Tensor, KVCache, ml.Tensor, ml.Tensor) (DecodeState, error):
		return fn, fn != nil
	case *DecodeFunc:
		if fn != nil {
			return asDecode(*fn)
		}
	case *func(ml.Context, DecodeModel, ml.Tensor, KVCache, ml.Tensor, ml.Tensor) (DecodeState, error):
		if fn != nil {
			return asDecode(*fn)
		}
	}
	return nil, false
}
