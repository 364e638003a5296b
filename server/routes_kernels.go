// routes_kernels.go - Handler fuer Kernel-Status, Reset, Geraete und Attention
// Enthaelt: KernelStatusHandler, ResetKernelsHandler, DevicesHandler, AttentionHandler

package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nanochat/nanochat/api"
	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/kernels/clustered"
	"github.com/nanochat/nanochat/ml"
)

// KernelStatusHandler gibt den Zustand aller Kernel-Slots zurueck
func (s *Server) KernelStatusHandler(c *gin.Context) {
	resp := api.NewKernelStatusResponse()
	resp.RegistryID = s.registry.ID()
	resp.Backend = s.backendName
	resp.AllowFallback = s.kernels.Options(kernels.KindAttention).AllowFallback
	resp.NumSMClusters = s.kernels.Clusters()
	resp.Warnings = s.registry.Notifier().Keys()

	for _, st := range s.registry.Status() {
		opts := s.kernels.Options(st.Kind)
		resp.Kernels.Set(st.Kind.Name(), api.KernelStatus{
			Kind:     st.Kind.String(),
			Enabled:  opts.Enabled,
			Provider: st.Provider.String(),
			Ref:      st.Ref,
			Warned:   st.Warned,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ResetKernelsHandler leert alle Slots und Warnungen der Registry
func (s *Server) ResetKernelsHandler(c *gin.Context) {
	s.registry.Reset()
	requestLogger(c).Info("kernel registry reset", "registry", s.registry.ID())
	c.Status(http.StatusOK)
}

func (s *Server) DevicesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"backend": s.backendName, "devices": s.backend.BackendDevices()})
}

// AttentionHandler fuehrt den konfigurierten Attention-Kernel aus
func (s *Server) AttentionHandler(c *gin.Context) {
	var req api.AttentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := s.backend.NewContext()
	if req.Device != "" && ml.Device(req.Device) != ctx.Device() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "backend serves device " + string(ctx.Device()) + ", not " + req.Device})
		return
	}

	q, k, v, mask, err := requestTensors(ctx, &req)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := s.kernels.Options(kernels.KindAttention)
	fn, err := s.registry.SelectAttention(opts, s.reference)
	if err != nil {
		c.AbortWithStatusJSON(statusCode(err), gin.H{"error": err.Error()})
		return
	}

	clusters := s.kernels.Clusters()
	if req.NumSMClusters > 0 {
		clusters = req.NumSMClusters
	}

	start := time.Now()
	out, err := fn(ctx, q, k, v, mask, kernels.AttentionOptions{
		Causal:        req.Causal,
		NumSMClusters: clusters,
		EnableGQA:     req.EnableGQA,
	})
	if err != nil {
		requestLogger(c).Debug("attention failed", "error", err)
		c.AbortWithStatusJSON(statusCode(err), gin.H{"error": err.Error()})
		return
	}

	provider := "reference"
	if opts.Enabled {
		provider = s.registry.Status()[0].Provider.String()
	}

	c.JSON(http.StatusOK, api.AttentionResponse{
		RequestID: c.GetString(requestIDHeader),
		Provider:  provider,
		Output:    payload(out),
		Duration:  time.Since(start),
	})
}

// statusCode bildet Kernel-Fehler auf HTTP-Statuscodes ab
func statusCode(err error) int {
	switch {
	case errors.Is(err, clustered.ErrShape), errors.Is(err, errPayload):
		return http.StatusBadRequest
	case errors.Is(err, kernels.ErrKernelUnavailable):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}
