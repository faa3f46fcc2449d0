// Jeeves Kernel Server
//
// Standalone gRPC server for the Jeeves kernel and engine services.
// This binary can be run as a sidecar process or remote service.
//
// Usage:
//
//	go run ./cmd/kernel                     # Default :50051
//	go run ./cmd/kernel -addr :8080         # Custom port
//	go build -o jeeves-kernel ./cmd/kernel && ./jeeves-kernel
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/agents"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/config"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/envelope"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/grpc"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/hooks"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/httpapi"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/kernel"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/protocol"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/runtime"
)

// stdLogger implements grpc.Logger and agents.Logger using standard library log.
type stdLogger struct{}

func (l *stdLogger) Debug(msg string, keysAndValues ...any) {
	log.Printf("[DEBUG] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Info(msg string, keysAndValues ...any) {
	log.Printf("[INFO] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Warn(msg string, keysAndValues ...any) {
	log.Printf("[WARN] %s %v", msg, keysAndValues)
}

func (l *stdLogger) Error(msg string, keysAndValues ...any) {
	log.Printf("[ERROR] %s %v", msg, keysAndValues)
}

// Bind satisfies agents.Logger; this logger carries no per-call fields, so
// it just returns itself.
func (l *stdLogger) Bind(fields ...any) agents.Logger {
	return l
}

func main() {
	// Parse command-line flags
	addr := flag.String("addr", ":50051", "gRPC server address")
	httpAddr := flag.String("http-addr", ":8080", "HTTP health/readiness/metrics server address")
	shellAddr := flag.String("shell-addr", ":50052", "LRP (execute/kernel_info/shutdown/interrupt) TCP address")
	debugAddr := flag.String("debug-addr", ":50053", "LDP (Execution Manager debug requests) TCP address")
	flag.Parse()

	logger := &stdLogger{}
	logger.Info("jeeves_kernel_starting", "version", "1.0.0", "address", *addr)

	// Load core orchestration config, applying any LLMSPELL_* env overrides
	config.SetCoreConfig(config.LoadCoreConfigFromEnv())

	// Create kernel with all subsystems (nil config uses defaults)
	k := kernel.NewKernel(logger, nil)
	logger.Info("kernel_created")

	// Event bus and hook executor shared by every pipeline run, and the
	// execute_request / Execution Manager protocol engine built on top of
	// them and the kernel's debug session registry.
	eventBus := events.NewBus(nil)
	hooksExec := hooks.NewExecutor(hooks.NewRegistry(), hooks.NewCircuitBreaker(hooks.DefaultBreakerConfig()), nil)

	echoConfig := &config.AgentConfig{Name: "echo", StageOrder: 0, OutputKey: "echo"}
	pipelineCfg := config.NewPipelineConfig("echo_pipeline")
	if err := pipelineCfg.AddAgent(echoConfig); err != nil {
		log.Fatalf("Failed to configure echo pipeline: %v", err)
	}
	if err := pipelineCfg.Validate(); err != nil {
		log.Fatalf("Failed to validate echo pipeline: %v", err)
	}

	echoAgent, err := agents.NewAgent(echoConfig, logger, nil, nil)
	if err != nil {
		log.Fatalf("Failed to create echo agent: %v", err)
	}
	echoAgent.UseMock = true
	echoAgent.EventCtx = &agents.BusEventContext{Bus: eventBus}
	echoAgent.MockHandler = func(env *envelope.GenericEnvelope) (map[string]any, error) {
		return map[string]any{"text": env.RawInput}, nil
	}
	pipelineAgents := map[string]*agents.UnifiedAgent{"echo": echoAgent}

	protocolEngine := protocol.NewEngine(protocol.NewNullProcessor())
	protocolEngine.RegisterProcessor(runtime.NewPipelineProcessor(pipelineCfg, pipelineAgents, logger, eventBus, hooksExec))
	protocolEngine.RegisterProcessor(kernel.NewExecutionManagerProcessor(k))

	protoCtx, protoCancel := context.WithCancel(context.Background())
	shellListener, err := protocol.ListenAndServeTCP(protoCtx, *shellAddr, protocol.ChannelShell, protocol.KindLRP, protocolEngine, logger)
	if err != nil {
		log.Fatalf("Failed to start shell listener: %v", err)
	}
	debugListener, err := protocol.ListenAndServeTCP(protoCtx, *debugAddr, protocol.ChannelControl, protocol.KindLDP, protocolEngine, logger)
	if err != nil {
		log.Fatalf("Failed to start debug listener: %v", err)
	}
	logger.Info("protocol_engine_ready", "shell_address", *shellAddr, "debug_address", *debugAddr)

	// Create admin gRPC server bound to the kernel
	admin := grpc.NewAdminServer(logger, k)
	logger.Info("grpc_server_configured", "services", []string{"kernel.v1.Admin"})

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	grpcServer, err := grpc.StartBackground(*addr, admin, logger)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Start the health/readiness/metrics HTTP surface on its own port
	httpServer := httpapi.NewServer(logger, k)
	httpGraceful, err := httpapi.StartBackground(*httpAddr, httpServer, logger)
	if err != nil {
		log.Fatalf("Failed to start HTTP server: %v", err)
	}

	logger.Info("jeeves_kernel_ready", "address", *addr, "http_address", *httpAddr)
	fmt.Printf("\nJeeves Kernel Server running on %s\n", *addr)
	fmt.Printf("Health/readiness/metrics available on %s\n", *httpAddr)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for shutdown signal
	sig := <-sigCh
	logger.Info("shutdown_signal_received", "signal", sig.String())

	// Graceful shutdown
	grpcServer.GracefulStop()
	if err := httpGraceful.ShutdownWithTimeout(5 * time.Second); err != nil {
		logger.Error("http_server_shutdown_failed", "error", err.Error())
	}
	protoCancel()
	if err := shellListener.Close(); err != nil {
		logger.Error("shell_listener_close_failed", "error", err.Error())
	}
	if err := debugListener.Close(); err != nil {
		logger.Error("debug_listener_close_failed", "error", err.Error())
	}
	logger.Info("jeeves_kernel_stopped")
}
