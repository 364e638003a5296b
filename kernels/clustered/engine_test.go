// engine_test.go - Unit-Tests fuer Pfadauswahl, Fallback und GQA der Engine
package clustered

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/ml"
	"github.com/nanochat/nanochat/ml/backend/host"
)

var approx = cmpopts.EquateApprox(0, 1e-2)

// recordingVarlen zeichnet Aufrufe auf und delegiert an den Host-Kernel
type recordingVarlen struct {
	hint bool

	err    error
	panic  bool
	nilOut bool

	calls      int
	cuQ, cuK   []int32
	maxQ, maxK int
	opts       ml.VarlenOptions
}

func (r *recordingVarlen) SupportsClusterHint() bool {
	return r.hint
}

func (r *recordingVarlen) VarlenAttention(ctx ml.Context, q, k, v, cuQ, cuK ml.Tensor, maxQ, maxK int, opts ml.VarlenOptions) (ml.Tensor, error) {
	r.calls++
	r.cuQ, r.cuK = cuQ.Ints(), cuK.Ints()
	r.maxQ, r.maxK = maxQ, maxK
	r.opts = opts

	switch {
	case r.panic:
		panic("kernel exploded")
	case r.err != nil:
		return nil, r.err
	case r.nilOut:
		return nil, nil
	}
	return host.Varlen{}.VarlenAttention(ctx, q, k, v, cuQ, cuK, maxQ, maxK, opts)
}

// plainVarlen kennt keine Cluster-Hinweise
type plainVarlen struct {
	opts ml.VarlenOptions
}

func (p *plainVarlen) VarlenAttention(ctx ml.Context, q, k, v, cuQ, cuK ml.Tensor, maxQ, maxK int, opts ml.VarlenOptions) (ml.Tensor, error) {
	p.opts = opts
	return host.Varlen{}.VarlenAttention(ctx, q, k, v, cuQ, cuK, maxQ, maxK, opts)
}

func random(ctx ml.Context, rng *rand.Rand, dtype ml.DType, shape ...int) ml.Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}

	s := make([]float32, n)
	for i := range s {
		s[i] = float32(rng.NormFloat64())
	}
	return ctx.FromFloats(dtype, s, shape...)
}

// inputs erzeugt q (B, Hq, T, D) sowie k, v (B, Hk, T, D)
func inputs(device ml.Device, dtype ml.DType, b, hq, hk, t, d int) (ml.Context, ml.Tensor, ml.Tensor, ml.Tensor) {
	ctx := host.NewContext(device)
	rng := rand.New(rand.NewPCG(11, 12))
	return ctx,
		random(ctx, rng, dtype, b, hq, t, d),
		random(ctx, rng, dtype, b, hk, t, d),
		random(ctx, rng, dtype, b, hk, t, d)
}

func dense(t *testing.T, ctx ml.Context, q, k, v, mask ml.Tensor, causal bool) []float32 {
	t.Helper()
	out, err := host.Dense{}.ScaledDotProductAttention(ctx, q, k, v, mask, ml.SDPOptions{Causal: causal, Backends: fallbackBackends})
	if err != nil {
		t.Fatalf("Dense: unerwarteter Fehler: %v", err)
	}
	return out.Floats()
}

// ============================================================================
// Beschleunigter Pfad
// ============================================================================

func TestEligibleCallUsesVarlen(t *testing.T) {
	ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 4, 4, 8, 16)
	varlen := &recordingVarlen{hint: true}
	e := New(host.Dense{}, WithVarlen(varlen))

	out, err := e.Attention(ctx, q, k, v, nil, kernels.AttentionOptions{Causal: true, NumSMClusters: 3})
	if err != nil {
		t.Fatalf("Attention: unerwarteter Fehler: %v", err)
	}

	if varlen.calls != 1 {
		t.Fatalf("Varlen-Kernel: erwartet 1 Aufruf, bekommen %d", varlen.calls)
	}

	if diff := cmp.Diff([]int32{0, 8, 16}, varlen.cuQ); diff != "" {
		t.Errorf("cu_seqlens_q (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int32{0, 8, 16}, varlen.cuK); diff != "" {
		t.Errorf("cu_seqlens_k (-want +got):\n%s", diff)
	}
	if varlen.maxQ != 8 || varlen.maxK != 8 {
		t.Errorf("max_seqlen: erwartet 8/8, bekommen %d/%d", varlen.maxQ, varlen.maxK)
	}
	if !varlen.opts.Causal || varlen.opts.DropoutP != 0 {
		t.Errorf("VarlenOptions: erwartet causal ohne Dropout, bekommen %+v", varlen.opts)
	}
	if varlen.opts.NumSMClusters == nil || *varlen.opts.NumSMClusters != 3 {
		t.Errorf("Cluster-Hinweis: erwartet 3, bekommen %v", varlen.opts.NumSMClusters)
	}

	if diff := cmp.Diff([]int{2, 4, 8, 16}, out.Shape()); diff != "" {
		t.Errorf("Ausgabeform (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(dense(t, ctx, q, k, v, nil, true), out.Floats(), approx); diff != "" {
		t.Errorf("Varlen-Ergebnis weicht von Dense ab (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(Stats{Accelerated: 1}, e.Stats()); diff != "" {
		t.Errorf("Stats (-want +got):\n%s", diff)
	}
}

func TestClusterHint(t *testing.T) {
	tests := []struct {
		name     string
		kernel   ml.VarlenAttention
		clusters int
		want     bool
	}{
		{"Kernel ohne Interface", &plainVarlen{}, 4, false},
		{"Kernel lehnt ab", &recordingVarlen{hint: false}, 4, false},
		{"kein Hinweis gesetzt", &recordingVarlen{hint: true}, 0, false},
		{"Hinweis weitergegeben", &recordingVarlen{hint: true}, 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeF16, 1, 2, 2, 4, 8)
			e := New(host.Dense{}, WithVarlen(tt.kernel))

			if _, err := e.Attention(ctx, q, k, v, nil, kernels.AttentionOptions{NumSMClusters: tt.clusters}); err != nil {
				t.Fatalf("Attention: %v", err)
			}

			var opts ml.VarlenOptions
			switch kernel := tt.kernel.(type) {
			case *plainVarlen:
				opts = kernel.opts
			case *recordingVarlen:
				opts = kernel.opts
			}

			if got := opts.NumSMClusters != nil; got != tt.want {
				t.Errorf("Cluster-Hinweis gesetzt = %v, erwartet %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Fallback
// ============================================================================

func TestIneligibleCallsUseDense(t *testing.T) {
	tests := []struct {
		name   string
		device ml.Device
		dtype  ml.DType
		mask   bool
	}{
		{"Maske", ml.DeviceCUDA, ml.DTypeBF16, true},
		{"CPU", ml.DeviceCPU, ml.DTypeBF16, false},
		{"f32", ml.DeviceCUDA, ml.DTypeF32, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, q, k, v := inputs(tt.device, tt.dtype, 2, 2, 2, 4, 8)

			var mask ml.Tensor
			if tt.mask {
				mask = ctx.FromBools([]bool{
					true, false, false, false,
					true, true, false, false,
					false, true, true, false,
					true, true, true, true,
				}, 4, 4)
			}

			varlen := &recordingVarlen{hint: true}
			e := New(host.Dense{}, WithVarlen(varlen))

			out, err := e.Attention(ctx, q, k, v, mask, kernels.AttentionOptions{Causal: true})
			if err != nil {
				t.Fatalf("Attention: %v", err)
			}

			if varlen.calls != 0 {
				t.Errorf("Varlen-Kernel sollte nicht aufgerufen werden, %d Aufrufe", varlen.calls)
			}

			// Eine Maske ersetzt die kausale Einschraenkung
			want := dense(t, ctx, q, k, v, mask, mask == nil)
			if diff := cmp.Diff(want, out.Floats(), approx); diff != "" {
				t.Errorf("Dense-Ergebnis (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(Stats{Fallback: 1}, e.Stats()); diff != "" {
				t.Errorf("Stats (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExplicitCausalMaskMatchesCausal(t *testing.T) {
	ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 4, 4, 8, 16)

	keep := make([]bool, 2*8*8)
	for b := range 2 {
		for i := range 8 {
			for j := 0; j <= i; j++ {
				keep[b*64+i*8+j] = true
			}
		}
	}
	mask := ctx.FromBools(keep, 2, 1, 8, 8)

	varlen := &recordingVarlen{hint: true}
	e := New(host.Dense{}, WithVarlen(varlen))

	out, err := e.Attention(ctx, q, k, v, mask, kernels.AttentionOptions{})
	if err != nil {
		t.Fatalf("Attention: %v", err)
	}

	if varlen.calls != 0 {
		t.Errorf("Varlen-Kernel sollte nicht aufgerufen werden, %d Aufrufe", varlen.calls)
	}

	if diff := cmp.Diff(dense(t, ctx, q, k, v, nil, true), out.Floats(), approx); diff != "" {
		t.Errorf("Dreiecksmaske sollte kausaler Attention entsprechen (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(Stats{Fallback: 1}, e.Stats()); diff != "" {
		t.Errorf("Stats (-want +got):\n%s", diff)
	}
}

func TestVarlenFailuresFallBack(t *testing.T) {
	tests := []struct {
		name   string
		kernel *recordingVarlen
		want   Status
	}{
		{"Fehler", &recordingVarlen{err: errors.New("launch failed")}, TransientFailure},
		{"Panic", &recordingVarlen{panic: true}, TransientFailure},
		{"keine Ausgabe", &recordingVarlen{nilOut: true}, Unavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 2, 2, 4, 8)
			e := New(host.Dense{}, WithVarlen(tt.kernel))

			if res := e.accelerate(ctx, q, k, v, kernels.AttentionOptions{}); res.Status != tt.want {
				t.Errorf("accelerate: erwartet %v, bekommen %v (%v)", tt.want, res.Status, res.Err)
			}

			out, err := e.Attention(ctx, q, k, v, nil, kernels.AttentionOptions{Causal: true})
			if err != nil {
				t.Fatalf("Attention sollte auf Dense zurueckfallen, bekommen %v", err)
			}

			if diff := cmp.Diff(dense(t, ctx, q, k, v, nil, true), out.Floats(), approx); diff != "" {
				t.Errorf("Dense-Ergebnis (-want +got):\n%s", diff)
			}
			if got := e.Stats().Fallback; got != 1 {
				t.Errorf("Stats.Fallback: erwartet 1, bekommen %d", got)
			}
		})
	}
}

func TestNoVarlenKernel(t *testing.T) {
	ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 1, 2, 2, 4, 8)
	e := New(host.Dense{})

	if res := e.accelerate(ctx, q, k, v, kernels.AttentionOptions{}); res.Status != Unavailable {
		t.Errorf("ohne Kernel: erwartet unavailable, bekommen %v", res.Status)
	}

	if _, err := e.Attention(ctx, q, k, v, nil, kernels.AttentionOptions{}); err != nil {
		t.Errorf("Attention: %v", err)
	}
}

// ============================================================================
// GQA und Validierung
// ============================================================================

func TestGroupedQueryAttention(t *testing.T) {
	for _, device := range []ml.Device{ml.DeviceCPU, ml.DeviceCUDA} {
		ctx, q, k, v := inputs(device, ml.DTypeBF16, 2, 4, 2, 4, 8)
		e := New(host.Dense{}, WithVarlen(&recordingVarlen{hint: true}))

		out, err := e.Attention(ctx, q, k, v, nil, kernels.AttentionOptions{Causal: true, EnableGQA: true})
		if err != nil {
			t.Fatalf("%v: Attention: %v", device, err)
		}

		// Query-Head i liest KV-Head i/2
		want := dense(t, ctx, q, RepeatKV(ctx, k, 2), RepeatKV(ctx, v, 2), nil, true)
		if diff := cmp.Diff(want, out.Floats(), approx); diff != "" {
			t.Errorf("%v: GQA (-want +got):\n%s", device, diff)
		}
	}
}

func TestValidation(t *testing.T) {
	ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 4, 2, 4, 8)
	_, q3, k3, _ := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 3, 2, 4, 8)
	_, _, kc, vc := inputs(ml.DeviceCPU, ml.DTypeBF16, 2, 4, 2, 4, 8)
	q0 := ctx.Empty(ml.DTypeBF16, 1, 0, 2, 4)
	k1 := ctx.FromFloats(ml.DTypeBF16, make([]float32, 8), 1, 1, 2, 4)

	tests := []struct {
		name    string
		q, k, v ml.Tensor
		mask    ml.Tensor
		opts    kernels.AttentionOptions
	}{
		{"GQA deaktiviert", q, k, v, nil, kernels.AttentionOptions{}},
		{"Heads nicht teilbar", q3, k3, k3, nil, kernels.AttentionOptions{EnableGQA: true}},
		{"Rang 3", q.Reshape(ctx, 8, 4, 8), k, v, nil, kernels.AttentionOptions{EnableGQA: true}},
		{"k und v verschieden", q, k, q, nil, kernels.AttentionOptions{EnableGQA: true}},
		{"verschiedene Geraete", q, kc, vc, nil, kernels.AttentionOptions{EnableGQA: true}},
		{"Maske nicht bool", q, k, v, ctx.FromFloats(ml.DTypeF32, make([]float32, 16), 4, 4), kernels.AttentionOptions{EnableGQA: true}},
		{"Maske nicht broadcastbar", q, k, v, ctx.FromBools(make([]bool, 12), 3, 4), kernels.AttentionOptions{EnableGQA: true}},
		{"fehlender Tensor", q, nil, v, nil, kernels.AttentionOptions{}},
		{"keine Query-Heads", q0, k1, k1, nil, kernels.AttentionOptions{EnableGQA: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(host.Dense{})
			if _, err := e.Attention(ctx, tt.q, tt.k, tt.v, tt.mask, tt.opts); !errors.Is(err, ErrShape) {
				t.Errorf("erwartet ErrShape, bekommen %v", err)
			}
		})
	}
}

func TestCumulativeOffsets(t *testing.T) {
	ctx := host.NewContext(ml.DeviceCUDA)
	if diff := cmp.Diff([]int32{0, 5, 10, 15}, CumulativeOffsets(ctx, 3, 5).Ints()); diff != "" {
		t.Errorf("CumulativeOffsets (-want +got):\n%s", diff)
	}
}

func TestFlattenRoundTrip(t *testing.T) {
	ctx, q, _, _ := inputs(ml.DeviceCUDA, ml.DTypeF32, 2, 3, 3, 4, 5)

	flat := Flatten(ctx, q)
	if diff := cmp.Diff([]int{8, 3, 5}, flat.Shape()); diff != "" {
		t.Errorf("Flatten-Form (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff(q.Floats(), Unflatten(ctx, flat, 2, 4).Floats()); diff != "" {
		t.Errorf("Unflatten(Flatten(q)) sollte q ergeben (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Zusammenspiel mit der Registry
// ============================================================================

func TestRegistryScenarios(t *testing.T) {
	ctx, q, k, v := inputs(ml.DeviceCUDA, ml.DTypeBF16, 2, 4, 4, 8, 16)

	catalog := kernels.NewCatalog()
	e := New(host.Dense{}, WithVarlen(&recordingVarlen{hint: true}))
	e.Export(catalog)
	reference := New(host.Dense{}).Attention

	t.Run("aktiviert ohne Kernel", func(t *testing.T) {
		r := kernels.New(kernels.WithLoader(catalog))
		fn, err := r.SelectAttention(kernels.KernelOptions{Enabled: true}, reference)
		if err != nil {
			t.Fatalf("SelectAttention: %v", err)
		}

		if _, err := fn(ctx, q, k, v, nil, kernels.AttentionOptions{Causal: true}); !errors.Is(err, kernels.ErrKernelUnavailable) {
			t.Errorf("erwartet ErrKernelUnavailable, bekommen %v", err)
		}
	})

	t.Run("symbolische Referenz auf die Engine", func(t *testing.T) {
		r := kernels.New(kernels.WithLoader(catalog))
		fn, err := r.SelectAttention(kernels.KernelOptions{Enabled: true, Impl: Unit}, reference)
		if err != nil {
			t.Fatalf("SelectAttention: %v", err)
		}

		out, err := fn(ctx, q, k, v, nil, kernels.AttentionOptions{Causal: true})
		if err != nil {
			t.Fatalf("Attention: %v", err)
		}
		if diff := cmp.Diff([]int{2, 4, 8, 16}, out.Shape()); diff != "" {
			t.Errorf("Ausgabeform (-want +got):\n%s", diff)
		}
	})

	t.Run("Maske mit Fallback", func(t *testing.T) {
		r := kernels.New(kernels.WithLoader(catalog))
		fn, err := r.SelectAttention(kernels.KernelOptions{Enabled: true, AllowFallback: true}, reference)
		if err != nil {
			t.Fatalf("SelectAttention: %v", err)
		}

		mask := ctx.FromBools(make([]bool, 8*8), 1, 1, 8, 8)
		out, err := fn(ctx, q, k, v, mask, kernels.AttentionOptions{Causal: true})
		if err != nil {
			t.Fatalf("Attention: %v", err)
		}

		// komplett maskiert ergibt Nullen
		if diff := cmp.Diff(make([]float32, 2*4*8*16), out.Floats()); diff != "" {
			t.Errorf("vollstaendig maskierte Ausgabe (-want +got):\n%s", diff)
		}
	})
}
