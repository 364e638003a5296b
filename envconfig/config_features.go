// config_features.go - Kernel-Flags
//
// Dieses Modul enthaelt:
// - Flags fuer Clustered Attention und Persistent Decode
// - Symbolische Kernel-Referenzen (unit:entry)
// - Fallback- und Cluster-Einstellungen
package envconfig

// =============================================================================
// Clustered Attention
// =============================================================================

var (
	// ClusteredAttention fordert den Clustered-Attention-Kernel an
	ClusteredAttention = Bool("NANOCHAT_CLUSTERED_ATTENTION")

	// ClusteredAttentionImpl ist die symbolische Referenz des Kernels (unit:entry)
	ClusteredAttentionImpl = String("NANOCHAT_CLUSTERED_ATTENTION_IMPL")

	// NumSMClusters verteilt identische Attention-Arbeit auf SM-Cluster (0 = kein Hinweis)
	NumSMClusters = Uint("NANOCHAT_NUM_SM_CLUSTERS", 0)
)

// =============================================================================
// Persistent Decode
// =============================================================================

var (
	// PersistentDecode fordert den Persistent-Decode-Kernel an
	PersistentDecode = Bool("NANOCHAT_PERSISTENT_DECODE")

	// PersistentDecodeImpl ist die symbolische Referenz des Kernels (unit:entry)
	PersistentDecodeImpl = String("NANOCHAT_PERSISTENT_DECODE_IMPL")
)

// =============================================================================
// Fallback
// =============================================================================

var (
	// AllowKernelStubFallback erlaubt die Referenz-Implementierung statt des Stub-Fehlers
	AllowKernelStubFallback = Bool("NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK")

	// KernelPluginDir ist das Verzeichnis fuer relative Plugin-Units
	KernelPluginDir = String("NANOCHAT_KERNEL_PLUGIN_DIR")
)
