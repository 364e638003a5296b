// cmd_kernels.go - Kernel-Commands ohne Server
// Hauptfunktionen: ResolveHandler, AttentionHandler, ParityHandler
package cmd

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/kernels/clustered"
	"github.com/nanochat/nanochat/ml"
)

// ResolveHandler - Loest jede Kernel-Art mit der aktuellen Konfiguration auf
func ResolveHandler(cmd *cobra.Command, args []string) error {
	cfg, err := kernelConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}

	var data [][]string
	for _, kind := range kernels.Kinds() {
		opts := cfg.Options(kind)

		switch kind {
		case kernels.KindAttention:
			_, err = rt.registry.SelectAttention(opts, rt.reference)
		case kernels.KindDecode:
			_, err = rt.registry.SelectDecode(opts, kernels.ForwardDecode)
		}

		st := rt.registry.Status()[kind]
		provider, result := st.Provider.String(), "ok"
		switch {
		case !opts.Enabled:
			provider = "reference"
		case err != nil:
			result = err.Error()
		case st.Provider == kernels.ProviderStub:
			result = "calls fail: " + kernels.ErrKernelUnavailable.Error()
		}

		data = append(data, []string{kind.Name(), yesNo(opts.Enabled), orDash(opts.Impl), provider, result})
	}

	renderTable(os.Stdout, []string{"KERNEL", "ENABLED", "IMPL", "PROVIDER", "RESULT"}, data)
	return nil
}

// attentionShape - Eingabe-Parameter von attention
type attentionShape struct {
	batch, heads, kvHeads, seq, headDim int

	dtype    ml.DType
	causal   bool
	clusters int
	seed     uint64
}

func readAttentionShape(cmd *cobra.Command) (attentionShape, error) {
	var s attentionShape
	s.batch, _ = cmd.Flags().GetInt("batch")
	s.heads, _ = cmd.Flags().GetInt("heads")
	s.kvHeads, _ = cmd.Flags().GetInt("kv-heads")
	s.seq, _ = cmd.Flags().GetInt("seq")
	s.headDim, _ = cmd.Flags().GetInt("head-dim")
	s.causal, _ = cmd.Flags().GetBool("causal")
	s.clusters, _ = cmd.Flags().GetInt("clusters")
	s.seed, _ = cmd.Flags().GetUint64("seed")

	if s.kvHeads == 0 {
		s.kvHeads = s.heads
	}

	name, _ := cmd.Flags().GetString("dtype")
	dtype, err := parseFloatDType(name)
	if err != nil {
		return s, err
	}
	s.dtype = dtype

	if s.batch < 1 || s.heads < 1 || s.kvHeads < 1 || s.seq < 1 || s.headDim < 1 {
		return s, errors.New("shape dimensions must be positive")
	}
	return s, nil
}

func (s attentionShape) inputs(ctx ml.Context, withMask bool) (q, k, v, mask ml.Tensor) {
	rng := rand.New(rand.NewPCG(s.seed, s.seed))
	q = randomTensor(ctx, rng, s.dtype, s.batch, s.heads, s.seq, s.headDim)
	k = randomTensor(ctx, rng, s.dtype, s.batch, s.kvHeads, s.seq, s.headDim)
	v = randomTensor(ctx, rng, s.dtype, s.batch, s.kvHeads, s.seq, s.headDim)

	if withMask {
		keep := make([]bool, s.seq*s.seq)
		for i := range s.seq {
			for j := 0; j <= i; j++ {
				keep[i*s.seq+j] = true
			}
		}
		mask = ctx.FromBools(keep, s.seq, s.seq)
	}
	return q, k, v, mask
}

// AttentionHandler - Fuehrt den konfigurierten Attention-Kernel aus
func AttentionHandler(cmd *cobra.Command, args []string) error {
	shape, err := readAttentionShape(cmd)
	if err != nil {
		return err
	}

	withMask, _ := cmd.Flags().GetBool("mask")
	if remote, _ := cmd.Flags().GetBool("remote"); remote {
		return remoteAttention(cmd, shape, withMask)
	}

	cfg, err := kernelConfig(cmd)
	if err != nil {
		return err
	}

	rt, err := newSession(cmd)
	if err != nil {
		return err
	}

	ctx := rt.backend.NewContext()
	q, k, v, mask := shape.inputs(ctx, withMask)

	opts := cfg.Options(kernels.KindAttention)
	fn, err := rt.registry.SelectAttention(opts, rt.reference)
	if err != nil {
		return err
	}

	clusters := cfg.Clusters()
	if shape.clusters > 0 {
		clusters = shape.clusters
	}

	start := time.Now()
	out, err := fn(ctx, q, k, v, mask, kernels.AttentionOptions{
		Causal:        shape.causal,
		NumSMClusters: clusters,
		EnableGQA:     shape.kvHeads != shape.heads,
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	provider, path := "reference", "dense"
	if opts.Enabled {
		provider = rt.registry.Status()[kernels.KindAttention].Provider.String()
		if stats := rt.engine.Stats(); stats.Accelerated > 0 {
			path = "varlen"
		} else if stats.Fallback == 0 {
			path = "-"
		}
	}

	renderTable(os.Stdout, []string{"PROVIDER", "PATH", "DEVICE", "DTYPE", "SHAPE", "MEAN |X|", "DURATION"}, [][]string{{
		provider, path, string(out.Device()), out.DType().String(), fmt.Sprint(out.Shape()),
		fmt.Sprintf("%.6f", meanAbs(out.Floats())), elapsed.String(),
	}})

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		fmt.Println(ml.Dump(out))
	}
	return nil
}

// remoteAttention - Schickt die Eingaben an einen laufenden Server
func remoteAttention(cmd *cobra.Command, shape attentionShape, withMask bool) error {
	if err := checkServerHeartbeat(cmd, nil); err != nil {
		return err
	}

	client, err := api.ClientFromEnvironment()
	if err != nil {
		return err
	}

	device, _ := cmd.Flags().GetString("device")
	q, k, v, mask := shape.inputs(hostContext(device), withMask)

	req := &api.AttentionRequest{
		Device:        device,
		Q:             tensorPayload(q),
		K:             tensorPayload(k),
		V:             tensorPayload(v),
		Causal:        shape.causal,
		EnableGQA:     shape.kvHeads != shape.heads,
		NumSMClusters: shape.clusters,
	}
	if mask != nil {
		p := tensorPayload(mask)
		req.Mask = &p
	}

	resp, err := client.Attention(cmd.Context(), req)
	if err != nil {
		return err
	}

	renderTable(os.Stdout, []string{"REQUEST", "PROVIDER", "DTYPE", "SHAPE", "MEAN |X|", "DURATION"}, [][]string{{
		resp.RequestID, resp.Provider, resp.Output.DType, fmt.Sprint(resp.Output.Shape),
		fmt.Sprintf("%.6f", meanAbs(resp.Output.Data)), resp.Duration.String(),
	}})
	return nil
}

// parityCase - Ergebnis eines Vergleichs
type parityCase struct {
	shape []int
	dtype ml.DType
	group int

	path    string
	maxDiff float64
	err     error
}

// ParityHandler - Vergleicht den Varlen-Pfad mit dichter Attention
func ParityHandler(cmd *cobra.Command, args []string) error {
	rt, err := newSession(cmd)
	if err != nil {
		return err
	}

	vb, ok := rt.backend.(ml.VarlenBackend)
	if !ok {
		name, _ := cmd.Flags().GetString("backend")
		return fmt.Errorf("backend %q has no varlen kernel", name)
	}

	shapes, _ := cmd.Flags().GetStringSlice("shapes")
	dtypes, _ := cmd.Flags().GetStringSlice("dtypes")
	groups, _ := cmd.Flags().GetInt("kv-groups")
	tolerance, _ := cmd.Flags().GetFloat64("tolerance")
	seed, _ := cmd.Flags().GetUint64("seed")
	parallel, _ := cmd.Flags().GetInt("parallel")
	if parallel < 1 {
		parallel = runtime.NumCPU()
	}

	var cases []*parityCase
	for _, s := range shapes {
		shape, err := parseShape(s)
		if err != nil {
			return err
		}

		for _, name := range dtypes {
			dtype, err := parseFloatDType(name)
			if err != nil {
				return err
			}

			group := 1
			if groups > 1 && shape[1]%groups == 0 {
				group = groups
			}
			cases = append(cases, &parityCase{shape: shape, dtype: dtype, group: group})
		}
	}

	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, c := range cases {
		g.Go(func() error {
			engine := clustered.New(rt.backend.Dense(), clustered.WithVarlen(vb.Varlen()))
			c.maxDiff, c.err = compare(rt.backend.NewContext(), engine, rt.reference, c, seed+uint64(i))

			switch stats := engine.Stats(); {
			case stats.Accelerated > 0:
				c.path = "varlen"
			default:
				c.path = "dense"
			}

			if c.err != nil || c.maxDiff > tolerance {
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait() //nolint:errcheck

	var data [][]string
	for _, c := range cases {
		result := "ok"
		switch {
		case c.err != nil:
			result = c.err.Error()
		case c.maxDiff > tolerance:
			result = "mismatch"
		}
		data = append(data, []string{
			fmt.Sprint(c.shape), c.dtype.String(), fmt.Sprint(c.group), c.path,
			fmt.Sprintf("%.3g", c.maxDiff), result,
		})
	}

	renderTable(os.Stdout, []string{"SHAPE", "DTYPE", "GQA", "PATH", "MAX DIFF", "RESULT"}, data)

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d parity checks failed", n, len(cases))
	}
	return nil
}

// compare - Maximale absolute Abweichung zwischen Engine und Referenz
func compare(ctx ml.Context, engine *clustered.Engine, reference kernels.AttentionFunc, c *parityCase, seed uint64) (float64, error) {
	b, h, t, d := c.shape[0], c.shape[1], c.shape[2], c.shape[3]
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	q := randomTensor(ctx, rng, c.dtype, b, h, t, d)
	k := randomTensor(ctx, rng, c.dtype, b, h/c.group, t, d)
	v := randomTensor(ctx, rng, c.dtype, b, h/c.group, t, d)

	opts := kernels.AttentionOptions{Causal: true, EnableGQA: c.group > 1}

	got, err := engine.Attention(ctx, q, k, v, nil, opts)
	if err != nil {
		return 0, err
	}

	want, err := reference(ctx, q, k, v, nil, opts)
	if err != nil {
		return 0, err
	}

	return maxAbsDiff(got.Floats(), want.Floats()), nil
}

func maxAbsDiff(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var m float64
	for i := range a {
		m = max(m, math.Abs(float64(a[i])-float64(b[i])))
	}
	return m
}

func meanAbs(s []float32) float64 {
	if len(s) == 0 {
		return 0
	}

	var sum float64
	for _, v := range s {
		sum += math.Abs(float64(v))
	}
	return sum / float64(len(s))
}
