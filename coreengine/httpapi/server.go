// Package httpapi provides the ambient HTTP surface for the kernel process:
// health/readiness probes and Prometheus metrics exposition, bound on a
// separate port from the Jupyter-style protocol channels and the admin gRPC
// surface (coreengine/grpc). Router-group layout is grounded on
// codeready-toolchain-tarsy/pkg/api's setupRoutes style, ported to gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/kernel"
)

// Logger matches coreengine/grpc.Logger so callers can share one
// implementation (e.g. cmd/kernel/main.go's stdLogger) across both servers.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is returned by GET /readyz.
type ReadyResponse struct {
	Status        string         `json:"status"`
	ProcessCounts map[string]int `json:"process_counts"`
	QueueDepth    int            `json:"queue_depth"`
}

// Server wraps a gin.Engine bound to a kernel instance for liveness,
// readiness, and metrics reporting.
type Server struct {
	engine *gin.Engine
	kernel *kernel.Kernel
	logger Logger
}

// NewServer builds the HTTP surface. k may be nil at construction time and
// set later via SetKernel (mirroring coreengine/grpc.AdminServer), so the
// router can be wired before the kernel finishes initializing.
func NewServer(logger Logger, k *kernel.Kernel) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine: engine,
		kernel: k,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// SetKernel binds (or rebinds) the kernel instance backing readyz.
func (s *Server) SetKernel(k *kernel.Kernel) {
	s.kernel = k
}

// Engine exposes the underlying gin.Engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.healthzHandler)
	s.engine.GET("/readyz", s.readyzHandler)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// healthzHandler reports process liveness only: it never inspects the
// kernel's process table, so an overloaded kernel still reports healthy and
// is not killed by an external restart policy. Readiness (below) is where
// load is reported.
func (s *Server) healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, &HealthResponse{Status: statusHealthy})
}

// readyzHandler reports whether the kernel is accepting new work: a kernel
// with no process table bound (not yet constructed) is not ready; one with a
// process table is ready, degraded only surfaces via queue depth growth,
// which is left to dashboards rather than flipping the HTTP status.
func (s *Server) readyzHandler(c *gin.Context) {
	if s.kernel == nil {
		c.JSON(http.StatusServiceUnavailable, &ReadyResponse{Status: statusUnhealthy})
		return
	}

	lifecycle := s.kernel.Lifecycle()
	counts := lifecycle.GetProcessCount()
	stringCounts := make(map[string]int, len(counts))
	for state, n := range counts {
		stringCounts[string(state)] = n
	}

	c.JSON(http.StatusOK, &ReadyResponse{
		Status:        statusHealthy,
		ProcessCounts: stringCounts,
		QueueDepth:    lifecycle.GetQueueDepth(),
	})
}

// GracefulServer runs the gin engine behind an *http.Server so shutdown can
// drain in-flight requests, matching coreengine/grpc.GracefulServer's shape.
type GracefulServer struct {
	httpServer *http.Server
	address    string
	logger     Logger
}

// NewGracefulServer wraps srv's engine in an *http.Server bound to address.
func NewGracefulServer(srv *Server, address string, logger Logger) *GracefulServer {
	return &GracefulServer{
		httpServer: &http.Server{
			Addr:              address,
			Handler:           srv.Engine(),
			ReadHeaderTimeout: 5 * time.Second,
		},
		address: address,
		logger:  logger,
	}
}

// StartBackground starts the HTTP server on a background goroutine and
// returns immediately, matching coreengine/grpc.StartBackground's contract.
func StartBackground(address string, srv *Server, logger Logger) (*GracefulServer, error) {
	gs := NewGracefulServer(srv, address, logger)
	go func() {
		if err := gs.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if gs.logger != nil {
				gs.logger.Error("http_server_failed", "error", err.Error())
			}
		}
	}()
	return gs, nil
}

// Shutdown drains in-flight requests and stops the server.
func (gs *GracefulServer) Shutdown(ctx context.Context) error {
	return gs.httpServer.Shutdown(ctx)
}

// ShutdownWithTimeout is a convenience wrapper around Shutdown.
func (gs *GracefulServer) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return gs.Shutdown(ctx)
}

// Address returns the bound listen address.
func (gs *GracefulServer) Address() string {
	return gs.address
}
