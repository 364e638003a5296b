// config.go - Kernel-Einstellungen der Modell-Konfiguration
//
// Dieses Modul enthaelt:
// - Kernels: Die Kernel-Felder der Modell-Konfiguration (YAML oder JSON)
// - Load/Parse: Liest eine Konfigurationsdatei
// - FromEnvironment: Uebernimmt NANOCHAT_* Variablen
// - Options: Liefert kernels.KernelOptions pro Kernel-Art
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/kernels"
)

// ErrFormat is returned for configuration files of unknown type.
var ErrFormat = errors.New("unsupported config format")

// Kernels holds the custom kernel settings of a model configuration.
// Pointer fields distinguish "not set" from false or empty.
type Kernels struct {
	UseClusteredAttentionKernel *bool   `yaml:"use_clustered_attention_kernel" json:"use_clustered_attention_kernel,omitempty"`
	ClusteredAttentionImpl      *string `yaml:"clustered_attention_impl" json:"clustered_attention_impl,omitempty"`
	NumSMClusters               *int    `yaml:"num_sm_clusters" json:"num_sm_clusters,omitempty"`

	UsePersistentDecodeKernel *bool   `yaml:"use_persistent_decode_kernel" json:"use_persistent_decode_kernel,omitempty"`
	PersistentDecodeImpl      *string `yaml:"persistent_decode_impl" json:"persistent_decode_impl,omitempty"`

	AllowKernelStubFallback *bool `yaml:"allow_kernel_stub_fallback" json:"allow_kernel_stub_fallback,omitempty"`
}

// Load reads path as YAML (.yaml, .yml) or JSON (.json).
func Load(path string) (Kernels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Kernels{}, err
	}

	return Parse(data, strings.TrimPrefix(filepath.Ext(path), "."))
}

// Parse decodes data in the given format ("yaml", "yml" or "json").
func Parse(data []byte, format string) (Kernels, error) {
	var k Kernels
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &k); err != nil {
			return Kernels{}, fmt.Errorf("parse yaml config: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &k); err != nil {
			return Kernels{}, fmt.Errorf("parse json config: %w", err)
		}
	default:
		return Kernels{}, fmt.Errorf("%w: %q", ErrFormat, format)
	}

	if k.NumSMClusters != nil && *k.NumSMClusters < 0 {
		return Kernels{}, fmt.Errorf("%w: num_sm_clusters must not be negative", kernels.ErrConfiguration)
	}

	return k, nil
}

// FromEnvironment returns the settings given by NANOCHAT_* variables.
// Unset variables stay nil.
func FromEnvironment() Kernels {
	var k Kernels
	if envconfig.Var("NANOCHAT_CLUSTERED_ATTENTION") != "" {
		k.UseClusteredAttentionKernel = ptr(envconfig.ClusteredAttention())
	}
	if s := envconfig.ClusteredAttentionImpl(); s != "" {
		k.ClusteredAttentionImpl = ptr(s)
	}
	if envconfig.Var("NANOCHAT_NUM_SM_CLUSTERS") != "" {
		k.NumSMClusters = ptr(int(envconfig.NumSMClusters()))
	}
	if envconfig.Var("NANOCHAT_PERSISTENT_DECODE") != "" {
		k.UsePersistentDecodeKernel = ptr(envconfig.PersistentDecode())
	}
	if s := envconfig.PersistentDecodeImpl(); s != "" {
		k.PersistentDecodeImpl = ptr(s)
	}
	if envconfig.Var("NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK") != "" {
		k.AllowKernelStubFallback = ptr(envconfig.AllowKernelStubFallback())
	}
	return k
}

// Merge returns k with every field set in other taking precedence.
func (k Kernels) Merge(other Kernels) Kernels {
	k.UseClusteredAttentionKernel = or(other.UseClusteredAttentionKernel, k.UseClusteredAttentionKernel)
	k.ClusteredAttentionImpl = or(other.ClusteredAttentionImpl, k.ClusteredAttentionImpl)
	k.NumSMClusters = or(other.NumSMClusters, k.NumSMClusters)
	k.UsePersistentDecodeKernel = or(other.UsePersistentDecodeKernel, k.UsePersistentDecodeKernel)
	k.PersistentDecodeImpl = or(other.PersistentDecodeImpl, k.PersistentDecodeImpl)
	k.AllowKernelStubFallback = or(other.AllowKernelStubFallback, k.AllowKernelStubFallback)
	return k
}

// Options returns the kernel options for kind.
func (k Kernels) Options(kind kernels.Kind) kernels.KernelOptions {
	opts := kernels.KernelOptions{AllowFallback: value(k.AllowKernelStubFallback)}
	switch kind {
	case kernels.KindAttention:
		opts.Enabled = value(k.UseClusteredAttentionKernel)
		opts.Impl = value(k.ClusteredAttentionImpl)
	case kernels.KindDecode:
		opts.Enabled = value(k.UsePersistentDecodeKernel)
		opts.Impl = value(k.PersistentDecodeImpl)
	}
	return opts
}

// Clusters returns the compute-cluster hint, 0 if unset.
func (k Kernels) Clusters() int {
	return value(k.NumSMClusters)
}

// Marshal encodes k as JSON, omitting unset fields.
func (k Kernels) Marshal() ([]byte, error) {
	return json.Marshal(k)
}

func ptr[T any](v T) *T {
	return &v
}

func or[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

func value[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
