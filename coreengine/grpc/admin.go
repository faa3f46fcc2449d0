// Package grpc provides the admin/control-plane gRPC surface for the
// kernel: process introspection and a liveness probe, bound on a separate
// port from the Jupyter-style protocol channels. It deliberately carries
// no protoc-generated package; request/response bodies are JSON payloads
// framed in wrapperspb.BytesValue, which ships pre-built inside the
// protobuf module, so the wire format still marshals through real gRPC
// and protobuf machinery without a generated stub.
package grpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/kernel"
)

// Logger is the structured logger the admin server and its interceptors
// log through.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// IntrospectRequest filters AdminServer.Introspect's process listing.
// Both fields are optional; an empty State or UserID means "any".
type IntrospectRequest struct {
	State  string `json:"state,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// ProcessSummary is one process in an IntrospectResponse.
type ProcessSummary struct {
	PID       string `json:"pid"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

// IntrospectResponse answers an IntrospectRequest.
type IntrospectResponse struct {
	Processes  []ProcessSummary `json:"processes"`
	QueueDepth int              `json:"queue_depth"`
}

// HealthResponse answers a liveness probe with the kernel's per-state
// process counts, matching the shape a readiness dashboard would poll.
type HealthResponse struct {
	Status        string         `json:"status"`
	ProcessCounts map[string]int `json:"process_counts"`
}

// AdminServiceServer is the handler-type contract the hand-written
// ServiceDesc below dispatches to.
type AdminServiceServer interface {
	Introspect(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Health(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

// AdminServer implements AdminServiceServer over a kernel.Kernel.
type AdminServer struct {
	logger Logger
	kernel *kernel.Kernel
}

// NewAdminServer builds an AdminServer bound to k. k may be swapped later
// via SetKernel once it's constructed during startup.
func NewAdminServer(logger Logger, k *kernel.Kernel) *AdminServer {
	return &AdminServer{logger: logger, kernel: k}
}

// SetKernel rebinds the kernel the server introspects, for callers that
// build the server before the kernel is ready.
func (s *AdminServer) SetKernel(k *kernel.Kernel) {
	s.kernel = k
}

func unmarshalPayload(req *wrapperspb.BytesValue, out any) error {
	if req == nil || len(req.GetValue()) == 0 {
		return nil
	}
	return json.Unmarshal(req.GetValue(), out)
}

func marshalPayload(v any) (*wrapperspb.BytesValue, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, Internal("marshal admin response", err)
	}
	return wrapperspb.Bytes(payload), nil
}

// Introspect lists processes known to the kernel, optionally filtered by
// state and/or owning user, alongside the current ready-queue depth.
func (s *AdminServer) Introspect(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var in IntrospectRequest
	if err := unmarshalPayload(req, &in); err != nil {
		return nil, InvalidArgument("payload: " + err.Error())
	}

	var statePtr *kernel.ProcessState
	if in.State != "" {
		st := kernel.ProcessState(in.State)
		statePtr = &st
	}

	out := IntrospectResponse{QueueDepth: s.kernel.Lifecycle().GetQueueDepth()}
	for _, pcb := range s.kernel.ListProcesses(statePtr, in.UserID) {
		out.Processes = append(out.Processes, ProcessSummary{
			PID:       pcb.PID,
			UserID:    pcb.UserID,
			SessionID: pcb.SessionID,
			State:     string(pcb.State),
		})
	}

	s.logger.Debug("admin_introspect", "count", len(out.Processes), "queue_depth", out.QueueDepth)
	return marshalPayload(out)
}

// Health reports "ok" alongside the kernel's per-state process counts. It
// never returns an error; an unreachable kernel would fail at the
// transport level before this handler runs.
func (s *AdminServer) Health(ctx context.Context, req *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	counts := make(map[string]int)
	for state, n := range s.kernel.Lifecycle().GetProcessCount() {
		counts[string(state)] = n
	}
	return marshalPayload(HealthResponse{Status: "ok", ProcessCounts: counts})
}

var _ AdminServiceServer = (*AdminServer)(nil)

// AdminServiceDesc is the hand-written ServiceDesc standing in for a
// protoc-generated one. Registering it against a *grpc.Server exercises
// the real gRPC wire path (framing, codec, interceptor chain) with no
// build-time protoc dependency.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: "kernel.v1.Admin",
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: adminIntrospectHandler},
		{MethodName: "Health", Handler: adminHealthHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kernel/admin.proto",
}

func adminIntrospectHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/kernel.v1.Admin/Introspect"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).Introspect(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func adminHealthHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).Health(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/kernel.v1.Admin/Health"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).Health(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterAdminServiceServer wires srv's Introspect/Health methods onto s
// under the kernel.v1.Admin service name.
func RegisterAdminServiceServer(s *grpc.Server, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}
