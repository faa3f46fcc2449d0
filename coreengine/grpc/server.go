package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
)

// GracefulServer wraps a *grpc.Server bound to the admin service with the
// listen/serve/shutdown lifecycle the process entrypoint drives.
type GracefulServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
	address    string
	logger     Logger
}

// NewGracefulServer builds a *grpc.Server with the standard interceptor
// chain, registers admin as the kernel.v1.Admin service, and binds
// address without yet accepting connections.
func NewGracefulServer(admin *AdminServer, address string, logger Logger, opts ...grpc.ServerOption) (*GracefulServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	serverOpts := append(ServerOptions(logger), opts...)

	grpcServer := grpc.NewServer(serverOpts...)
	RegisterAdminServiceServer(grpcServer, admin)

	return &GracefulServer{
		grpcServer: grpcServer,
		listener:   listener,
		address:    address,
		logger:     logger,
	}, nil
}

// Start serves on the bound listener until ctx is cancelled, then
// gracefully stops.
func (s *GracefulServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.GracefulStop()
		return nil
	}
}

// StartBackground serves in a background goroutine and returns a channel
// that receives the terminal error from Serve, if any.
func (s *GracefulServer) StartBackground() (<-chan error, error) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.grpcServer.Serve(s.listener)
	}()
	return errCh, nil
}

// GracefulStop drains in-flight RPCs before returning.
func (s *GracefulServer) GracefulStop() {
	s.grpcServer.GracefulStop()
}

// Stop terminates immediately, cancelling any in-flight RPCs.
func (s *GracefulServer) Stop() {
	s.grpcServer.Stop()
}

// ShutdownWithTimeout attempts a graceful stop, falling back to a hard
// stop if it doesn't complete within timeout.
func (s *GracefulServer) ShutdownWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		s.grpcServer.Stop()
	}
}

// GetGRPCServer returns the underlying *grpc.Server, for tests that need
// to register additional services or inspect its state.
func (s *GracefulServer) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// Address returns the bound listener's address.
func (s *GracefulServer) Address() string {
	return s.listener.Addr().String()
}

// StartBackground is a package-level convenience that builds a
// GracefulServer around admin and starts it in the background,
// returning the underlying *grpc.Server for shutdown.
func StartBackground(address string, admin *AdminServer, logger Logger) (*grpc.Server, error) {
	gs, err := NewGracefulServer(admin, address, logger)
	if err != nil {
		return nil, err
	}
	if _, err := gs.StartBackground(); err != nil {
		return nil, err
	}
	return gs.grpcServer, nil
}
