// types.go - Core API Types (Fehler, Tensoren, Kernel-Status, Attention)
// Enthaelt: StatusError, TensorPayload, KernelStatus, AttentionRequest/Response
package api

import (
	"fmt"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		// this should not happen
		return "something went wrong, please see the nanochat server logs for details"
	}
}

// TensorPayload transportiert einen Tensor als flache float32-Liste in
// row-major Reihenfolge. Bool-Tensoren kodieren true als Wert ungleich 0.
type TensorPayload struct {
	Shape []int     `json:"shape"`
	DType string    `json:"dtype,omitempty"`
	Data  []float32 `json:"data"`
}

// KernelStatus beschreibt einen Kernel-Slot des Servers
type KernelStatus struct {
	Kind     string `json:"kind"`
	Enabled  bool   `json:"enabled"`
	Provider string `json:"provider"`
	Ref      string `json:"ref,omitempty"`
	Warned   bool   `json:"warned"`
}

// KernelStatusResponse is the response of [Client.KernelStatus]. Kernels
// is keyed by kernel name in resolution order.
type KernelStatusResponse struct {
	RegistryID    string                                        `json:"registry_id"`
	Backend       string                                        `json:"backend"`
	AllowFallback bool                                          `json:"allow_kernel_stub_fallback"`
	NumSMClusters int                                           `json:"num_sm_clusters"`
	Kernels       *orderedmap.OrderedMap[string, KernelStatus] `json:"kernels"`
	Warnings      []string                                      `json:"warnings,omitempty"`
}

// NewKernelStatusResponse returns a response with an empty kernel map.
func NewKernelStatusResponse() *KernelStatusResponse {
	return &KernelStatusResponse{Kernels: orderedmap.New[string, KernelStatus]()}
}

// AttentionRequest is the request passed to [Client.Attention].
type AttentionRequest struct {
	// Device labels the input tensors, e.g. "cpu" or "cuda"
	Device string `json:"device,omitempty"`

	Q    TensorPayload  `json:"q"`
	K    TensorPayload  `json:"k"`
	V    TensorPayload  `json:"v"`
	Mask *TensorPayload `json:"mask,omitempty"`

	Causal    bool `json:"causal,omitempty"`
	EnableGQA bool `json:"enable_gqa,omitempty"`

	// NumSMClusters overrides the server setting when positive
	NumSMClusters int `json:"num_sm_clusters,omitempty"`
}

// AttentionResponse is the response returned from [Client.Attention].
type AttentionResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Provider  string        `json:"provider"`
	Output    TensorPayload `json:"output"`
	Duration  time.Duration `json:"duration"`
}
