// Package api - API-Methoden des Clients.
// Dieses Modul enthaelt alle Kernel- und Attention-Methoden.

package api

import (
	"context"
	"net/http"
)

// KernelStatus reports the kernel slots of the server.
func (c *Client) KernelStatus(ctx context.Context) (*KernelStatusResponse, error) {
	resp := NewKernelStatusResponse()
	if err := c.do(ctx, http.MethodGet, "/api/kernels", nil, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ResetKernels clears every kernel slot and emitted warning of the server.
func (c *Client) ResetKernels(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/kernels/reset", nil, nil)
}

// Attention runs the attention kernel selected by the server
// configuration on the given tensors.
func (c *Client) Attention(ctx context.Context, req *AttentionRequest) (*AttentionResponse, error) {
	var resp AttentionResponse
	if err := c.do(ctx, http.MethodPost, "/api/attention", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.do(ctx, http.MethodHead, "/", nil, nil)
}

// Version returns the server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version struct {
		Version string `json:"version"`
	}

	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}

	return version.Version, nil
}
