// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - String: String-Getter
// - Uint: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// String-Getter
// =============================================================================

// String gibt eine Funktion zurueck, die einen String liest
func String(s string) func() string {
	return func() string {
		return Var(s)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"NANOCHAT_DEBUG":                      {"NANOCHAT_DEBUG", LogLevel(), "Show additional debug information (e.g. NANOCHAT_DEBUG=1, 2 for trace)"},
		"NANOCHAT_HOST":                       {"NANOCHAT_HOST", Host(), "IP Address for the kernel server (default 127.0.0.1:11500)"},
		"NANOCHAT_ORIGINS":                    {"NANOCHAT_ORIGINS", AllowedOrigins(), "A comma separated list of allowed origins"},
		"NANOCHAT_CLUSTERED_ATTENTION":        {"NANOCHAT_CLUSTERED_ATTENTION", ClusteredAttention(), "Use the clustered attention kernel"},
		"NANOCHAT_CLUSTERED_ATTENTION_IMPL":   {"NANOCHAT_CLUSTERED_ATTENTION_IMPL", ClusteredAttentionImpl(), "Clustered attention kernel as unit:entry"},
		"NANOCHAT_NUM_SM_CLUSTERS":            {"NANOCHAT_NUM_SM_CLUSTERS", NumSMClusters(), "Compute-cluster hint for clustered attention (0 disables)"},
		"NANOCHAT_PERSISTENT_DECODE":          {"NANOCHAT_PERSISTENT_DECODE", PersistentDecode(), "Use the persistent decode kernel"},
		"NANOCHAT_PERSISTENT_DECODE_IMPL":     {"NANOCHAT_PERSISTENT_DECODE_IMPL", PersistentDecodeImpl(), "Persistent decode kernel as unit:entry"},
		"NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK": {"NANOCHAT_ALLOW_KERNEL_STUB_FALLBACK", AllowKernelStubFallback(), "Use reference implementations when a requested kernel is missing"},
		"NANOCHAT_KERNEL_PLUGIN_DIR":          {"NANOCHAT_KERNEL_PLUGIN_DIR", KernelPluginDir(), "Directory searched for relative kernel plugin units"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
