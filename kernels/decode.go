package kernels

import "github.com/nanochat/nanochat/ml"

// ForwardDecode is the reference decode step: one full forward pass of
// model over ids. tokenMask is ignored and cache is returned as passed,
// the model extends it in place.
func ForwardDecode(ctx ml.Context, model DecodeModel, ids ml.Tensor, cache KVCache, attentionMask, tokenMask ml.Tensor) (DecodeState, error) {
	logits, err := model.Forward(ctx, ids, cache, attentionMask)
	if err != nil {
		return DecodeState{}, err
	}
	return DecodeState{Logits: logits, Cache: cache}, nil
}

var _ DecodeFunc = ForwardDecode
