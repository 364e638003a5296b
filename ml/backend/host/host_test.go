// host_test.go - Unit-Tests fuer Host-Tensoren, Dense-SDPA und Varlen-Kernel
//
// Die Tests rechnen mit kleinen Eingaben, deren Ergebnis von Hand
// nachvollziehbar ist.
package host

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/nanochat/nanochat/ml"
)

var approx = cmpopts.EquateApprox(0, 1e-5)

var mathOnly = ml.SDPBackends{EnableMath: true}

// ============================================================================
// Tensor Tests
// ============================================================================

func TestReshapeInfersDimension(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	x := ctx.Arange(0, 24, 1).Reshape(ctx, 2, 3, 4)

	got := x.Reshape(ctx, -1, 4).Shape()
	if diff := cmp.Diff([]int{6, 4}, got); diff != "" {
		t.Errorf("Reshape(-1, 4): falsche Form (-want +got):\n%s", diff)
	}
}

func TestPermute(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	x := ctx.FromFloats(ml.DTypeF32, []float32{0, 1, 2, 3, 4, 5}, 2, 3)

	got := x.Permute(ctx, 1, 0)
	if diff := cmp.Diff([]int{3, 2}, got.Shape()); diff != "" {
		t.Errorf("Permute: falsche Form (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{0, 3, 1, 4, 2, 5}, got.Floats()); diff != "" {
		t.Errorf("Permute: falsche Werte (-want +got):\n%s", diff)
	}
}

func TestPermuteRoundTrip(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	x := ctx.Arange(0, 2*3*4*5, 1).Reshape(ctx, 2, 3, 4, 5)

	y := x.Permute(ctx, 0, 2, 1, 3).Permute(ctx, 0, 2, 1, 3)
	if diff := cmp.Diff(x.Ints(), y.Ints()); diff != "" {
		t.Errorf("doppeltes Permute sollte die Eingabe ergeben (-want +got):\n%s", diff)
	}
}

func TestRepeatInterleave(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	x := ctx.FromFloats(ml.DTypeF32, []float32{1, 2, 3, 4}, 1, 2, 1, 2)

	got := x.RepeatInterleave(ctx, 1, 2)
	if diff := cmp.Diff([]int{1, 4, 1, 2}, got.Shape()); diff != "" {
		t.Errorf("RepeatInterleave: falsche Form (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float32{1, 2, 1, 2, 3, 4, 3, 4}, got.Floats()); diff != "" {
		t.Errorf("RepeatInterleave: falsche Werte (-want +got):\n%s", diff)
	}
}

func TestShapeOpsKeepStorageType(t *testing.T) {
	ctx := NewContext(ml.DeviceCUDA)

	mask := ctx.FromBools([]bool{true, false, false, true, true, false}, 2, 3).Permute(ctx, 1, 0)
	if diff := cmp.Diff([]bool{true, true, false, true, false, false}, mask.Bools()); diff != "" {
		t.Errorf("Permute bool (-want +got):\n%s", diff)
	}
	if mask.DType() != ml.DTypeBool || mask.Device() != ml.DeviceCUDA {
		t.Errorf("Permute: dtype/device verloren: %v/%v", mask.DType(), mask.Device())
	}

	ids := ctx.FromInts([]int32{7, 8, 9}, 3, 1).RepeatInterleave(ctx, 0, 2)
	if diff := cmp.Diff([]int32{7, 7, 8, 8, 9, 9}, ids.Ints()); diff != "" {
		t.Errorf("RepeatInterleave int32 (-want +got):\n%s", diff)
	}

	// Leere Tensoren behalten nur die Form
	empty := ctx.Empty(ml.DTypeF32, 2, 0, 4)
	if diff := cmp.Diff([]int{0, 2, 4}, empty.Permute(ctx, 1, 0, 2).Shape()); diff != "" {
		t.Errorf("Permute leer (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 0, 4}, empty.RepeatInterleave(ctx, 0, 2).Shape()); diff != "" {
		t.Errorf("RepeatInterleave leer (-want +got):\n%s", diff)
	}
}

func TestReducedPrecisionRounding(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)

	tests := []struct {
		name  string
		dtype ml.DType
		in    float32
		want  float32
	}{
		{"f16 unter halbem Epsilon", ml.DTypeF16, 1 + 1.0/4096, 1},
		{"f16 exakt darstellbar", ml.DTypeF16, 1.5, 1.5},
		{"bf16 unter Epsilon", ml.DTypeBF16, 1 + 1.0/512, 1},
		{"bf16 exakt darstellbar", ml.DTypeBF16, -2, -2},
		{"f32 unveraendert", ml.DTypeF32, 1 + 1.0/4096, 1 + 1.0/4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ctx.FromFloats(tt.dtype, []float32{tt.in}, 1).Floats()[0]
			if got != tt.want {
				t.Errorf("FromFloats(%v, %v) = %v, erwartet %v", tt.dtype, tt.in, got, tt.want)
			}
		})
	}
}

func TestCast(t *testing.T) {
	ctx := NewContext(ml.DeviceCUDA)
	x := ctx.FromFloats(ml.DTypeF32, []float32{0, 1.5, -2}, 3)

	b := x.Cast(ctx, ml.DTypeBool)
	if diff := cmp.Diff([]bool{false, true, true}, b.Bools()); diff != "" {
		t.Errorf("Cast(bool) (-want +got):\n%s", diff)
	}

	if b.Device() != ml.DeviceCUDA {
		t.Errorf("Cast sollte das Geraet behalten, bekommen %v", b.Device())
	}
}

func TestArange(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	if diff := cmp.Diff([]int32{0, 8, 16}, ctx.Arange(0, 24, 8).Ints()); diff != "" {
		t.Errorf("Arange (-want +got):\n%s", diff)
	}
}

// ============================================================================
// Dense SDPA Tests
// ============================================================================

// twoTokens liefert q, k, v fuer einen Head mit zwei Positionen, deren
// Scores alle gleich sind. Gemittelte Values sind damit (1+3)/2.
func twoTokens(ctx ml.Context) (q, k, v ml.Tensor) {
	q = ctx.FromFloats(ml.DTypeF32, []float32{1, 1}, 1, 1, 2, 1)
	k = ctx.FromFloats(ml.DTypeF32, []float32{1, 1}, 1, 1, 2, 1)
	v = ctx.FromFloats(ml.DTypeF32, []float32{1, 3}, 1, 1, 2, 1)
	return q, k, v
}

func TestDenseCausal(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	q, k, v := twoTokens(ctx)

	out, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, nil, ml.SDPOptions{Causal: true, Backends: mathOnly})
	if err != nil {
		t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
	}

	if diff := cmp.Diff([]float32{1, 2}, out.Floats(), approx); diff != "" {
		t.Errorf("causal SDPA (-want +got):\n%s", diff)
	}
}

func TestDenseMask(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	q, k, v := twoTokens(ctx)

	tests := []struct {
		name string
		keep []bool
		want []float32
	}{
		{"nur zweiter Key fuer Zeile 0", []bool{false, true, true, true}, []float32{3, 2}},
		{"komplett maskierte Zeile ergibt 0", []bool{false, false, true, true}, []float32{0, 2}},
		{"alles erlaubt", []bool{true, true, true, true}, []float32{2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mask := ctx.FromBools(tt.keep, 2, 2)

			// causal wird bei expliziter Maske ignoriert
			out, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, mask, ml.SDPOptions{Causal: true, Backends: mathOnly})
			if err != nil {
				t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
			}

			if diff := cmp.Diff(tt.want, out.Floats(), approx); diff != "" {
				t.Errorf("SDPA mit Maske (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDenseMaskNotBroadcastable(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	q, k, v := twoTokens(ctx)

	_, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, ctx.FromBools(make([]bool, 3), 3), ml.SDPOptions{Backends: mathOnly})
	if err == nil {
		t.Error("SDPA: Fehler fuer nicht broadcastbare Maske erwartet")
	}
}

func TestDenseRequiresMathBackend(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	q, k, v := twoTokens(ctx)

	_, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, nil, ml.SDPOptions{Backends: ml.SDPBackends{EnableFlash: true}})
	if !errors.Is(err, ml.ErrNoSDPBackend) {
		t.Errorf("SDPA ohne Math-Backend: erwartet ErrNoSDPBackend, bekommen %v", err)
	}
}

func TestDenseGroupedHeads(t *testing.T) {
	ctx := NewContext(ml.DeviceCPU)
	rng := rand.New(rand.NewPCG(3, 4))

	q := random(ctx, rng, ml.DTypeF32, 1, 4, 3, 2)
	k := random(ctx, rng, ml.DTypeF32, 1, 2, 3, 2)
	v := random(ctx, rng, ml.DTypeF32, 1, 2, 3, 2)

	grouped, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, nil, ml.SDPOptions{Causal: true, Backends: mathOnly})
	if err != nil {
		t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
	}

	expanded, err := Dense{}.ScaledDotProductAttention(ctx, q, k.RepeatInterleave(ctx, 1, 2), v.RepeatInterleave(ctx, 1, 2), nil, ml.SDPOptions{Causal: true, Backends: mathOnly})
	if err != nil {
		t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
	}

	if diff := cmp.Diff(expanded.Floats(), grouped.Floats(), approx); diff != "" {
		t.Errorf("Query-Head i sollte KV-Head i/2 lesen (-want +got):\n%s", diff)
	}
}

func TestDenseOutputKeepsDType(t *testing.T) {
	ctx := NewContext(ml.DeviceMetal)
	rng := rand.New(rand.NewPCG(1, 2))
	q := random(ctx, rng, ml.DTypeBF16, 1, 1, 2, 4)

	out, err := Dense{}.ScaledDotProductAttention(ctx, q, q, q, nil, ml.SDPOptions{Backends: mathOnly})
	if err != nil {
		t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
	}

	if out.DType() != ml.DTypeBF16 || out.Device() != ml.DeviceMetal {
		t.Errorf("SDPA: erwartet bf16 auf metal, bekommen %v auf %v", out.DType(), out.Device())
	}
}

// ============================================================================
// Varlen Tests
// ============================================================================

func pack(ctx ml.Context, x ml.Tensor) ml.Tensor {
	b, h, s, d := x.Dim(0), x.Dim(1), x.Dim(2), x.Dim(3)
	return x.Permute(ctx, 0, 2, 1, 3).Reshape(ctx, b*s, h, d)
}

func TestVarlenMatchesDense(t *testing.T) {
	for _, causal := range []bool{false, true} {
		ctx := NewContext(ml.DeviceCUDA)
		rng := rand.New(rand.NewPCG(7, 8))

		b, h, s, d := 2, 3, 5, 4
		q := random(ctx, rng, ml.DTypeF32, b, h, s, d)
		k := random(ctx, rng, ml.DTypeF32, b, h, s, d)
		v := random(ctx, rng, ml.DTypeF32, b, h, s, d)

		want, err := Dense{}.ScaledDotProductAttention(ctx, q, k, v, nil, ml.SDPOptions{Causal: causal, Backends: mathOnly})
		if err != nil {
			t.Fatalf("SDPA: unerwarteter Fehler: %v", err)
		}

		offsets := ctx.Arange(0, (b+1)*s, s)
		got, err := Varlen{}.VarlenAttention(ctx, pack(ctx, q), pack(ctx, k), pack(ctx, v), offsets, offsets, s, s, ml.VarlenOptions{Causal: causal})
		if err != nil {
			t.Fatalf("Varlen: unerwarteter Fehler: %v", err)
		}

		if diff := cmp.Diff(pack(ctx, want).Floats(), got.Floats(), approx); diff != "" {
			t.Errorf("causal=%v: Varlen weicht von Dense ab (-want +got):\n%s", causal, diff)
		}
	}
}

func TestVarlenRejectsBadOffsets(t *testing.T) {
	ctx := NewContext(ml.DeviceCUDA)
	x := ctx.Empty(ml.DTypeF16, 4, 1, 2)

	tests := []struct {
		name    string
		offsets []int32
		max     int
		opts    ml.VarlenOptions
	}{
		{"deckt Eingabe nicht ab", []int32{0, 2}, 4, ml.VarlenOptions{}},
		{"laenger als max", []int32{0, 4}, 2, ml.VarlenOptions{}},
		{"dropout", []int32{0, 4}, 4, ml.VarlenOptions{DropoutP: 0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cu := ctx.FromInts(tt.offsets, len(tt.offsets))
			if _, err := (Varlen{}).VarlenAttention(ctx, x, x, x, cu, cu, tt.max, tt.max, tt.opts); err == nil {
				t.Error("Varlen: Fehler erwartet")
			}
		})
	}
}

// ============================================================================
// Backend Tests
// ============================================================================

func TestBackendRegistered(t *testing.T) {
	b, err := ml.NewBackend("host", ml.BackendParams{Device: ml.DeviceCUDA})
	if err != nil {
		t.Fatalf("NewBackend(host): %v", err)
	}

	if _, ok := b.(ml.VarlenBackend); !ok {
		t.Error("host-Backend sollte einen Varlen-Kernel anbieten")
	}

	devices := b.BackendDevices()
	if len(devices) != 2 || devices[0].Device != ml.DeviceCPU || devices[1].Device != ml.DeviceCUDA {
		t.Errorf("BackendDevices: erwartet cpu und cuda, bekommen %v", devices)
	}

	if got := b.NewContext().Device(); got != ml.DeviceCUDA {
		t.Errorf("NewContext().Device() = %v, erwartet cuda", got)
	}
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
