// Package server - Haupt-Router und Server-Setup fuer den Kernel-Server
// Beinhaltet: Server-Struct, Router-Registrierung, CORS
package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nanochat/nanochat/config"
	"github.com/nanochat/nanochat/envconfig"
	"github.com/nanochat/nanochat/kernels"
	"github.com/nanochat/nanochat/kernels/clustered"
	"github.com/nanochat/nanochat/ml"
	_ "github.com/nanochat/nanochat/ml/backend"
	"github.com/nanochat/nanochat/version"
)

var mode string = gin.DebugMode

// Server beantwortet Kernel-Status- und Attention-Anfragen
type Server struct {
	addr net.Addr

	registry    *kernels.Registry
	backendName string
	backend     ml.Backend
	kernels     config.Kernels

	// engine is the clustered attention implementation exported to the
	// unit catalog; reference is the dense-only fallback
	engine    *clustered.Engine
	reference kernels.AttentionFunc
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// Params steuern NewServer
type Params struct {
	Addr     net.Addr
	Registry *kernels.Registry
	Backend  string
	Device   ml.Device
	Kernels  config.Kernels
}

// NewServer erstellt einen Server und exportiert die Clustered-Attention-Engine
// des Backends als Unit "clustered" in kernels.Units
func NewServer(p Params) (*Server, error) {
	if p.Registry == nil {
		p.Registry = kernels.Default()
	}
	if p.Backend == "" {
		p.Backend = "host"
	}

	b, err := ml.NewBackend(p.Backend, ml.BackendParams{Device: p.Device})
	if err != nil {
		return nil, err
	}

	opts := []clustered.Option{clustered.WithLogger(slog.Default().With("backend", p.Backend))}
	if vb, ok := b.(ml.VarlenBackend); ok {
		opts = append(opts, clustered.WithVarlen(vb.Varlen()))
	}

	s := &Server{
		addr:        p.Addr,
		registry:    p.Registry,
		backendName: p.Backend,
		backend:     b,
		kernels:     p.Kernels,
		engine:      clustered.New(b.Dense(), opts...),
		reference:   clustered.New(b.Dense()).Attention,
	}

	s.engine.Export(kernels.Units)
	return s, nil
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() (http.Handler, error) {
	if s.registry == nil || s.backend == nil {
		return nil, fmt.Errorf("server not initialized, use NewServer")
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
		requestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		gin.Recovery(),
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
		requestIDMiddleware(),
		requestLogMiddleware(),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "nanochat is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "nanochat is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Kernels
	r.GET("/api/kernels", s.KernelStatusHandler)
	r.POST("/api/kernels/reset", s.ResetKernelsHandler)
	r.GET("/api/devices", s.DevicesHandler)

	// Inference
	r.POST("/api/attention", s.AttentionHandler)

	return r, nil
}
