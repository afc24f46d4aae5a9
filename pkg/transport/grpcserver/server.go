// SPDX-License-Identifier: Apache-2.0

// Package grpcserver exposes the allot service as the gRPC service
// allot.v1.Allocator. Requests and responses are google.protobuf.Struct
// messages carrying the same fields as the HTTP JSON bodies, so no generated
// code is needed on either side. The standard gRPC health service reports
// the service health.
package grpcserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jllopis/allot/pkg/errors"
	allothealth "github.com/jllopis/allot/pkg/health"
	"github.com/jllopis/allot/pkg/service"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "allot.v1.Allocator"

// Full method names.
const (
	SolveMethod    = "/" + ServiceName + "/Solve"
	ReassignMethod = "/" + ServiceName + "/Reassign"
	RespaceMethod  = "/" + ServiceName + "/Respace"
)

// Allocator is implemented by the server side of allot.v1.Allocator.
type Allocator interface {
	Solve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Reassign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Respace(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes allot.v1.Allocator for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Allocator)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Solve", Handler: unaryHandler(SolveMethod, Allocator.Solve)},
		{MethodName: "Reassign", Handler: unaryHandler(ReassignMethod, Allocator.Reassign)},
		{MethodName: "Respace", Handler: unaryHandler(RespaceMethod, Allocator.Respace)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "allot/v1/allocator.proto",
}

type unaryMethod func(Allocator, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Allocator), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(Allocator), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Server adapts a service.Service to Allocator.
type Server struct {
	svc    *service.Service
	health *health.Server
	logger *slog.Logger
}

// New creates a Server.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, health: health.NewServer(), logger: logger}
}

// Register adds the allocator and health services to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(g, s.health)
}

// Solve implements Allocator.
func (s *Server) Solve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.SolveRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, ToGRPCStatus(err)
	}
	out, err := s.svc.Solve(ctx, in)
	if err != nil {
		return nil, ToGRPCStatus(err)
	}
	return toStruct(out)
}

// Reassign implements Allocator.
func (s *Server) Reassign(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.ReassignRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, ToGRPCStatus(err)
	}
	out, err := s.svc.Reassign(ctx, in)
	if err != nil {
		return nil, ToGRPCStatus(err)
	}
	return toStruct(out)
}

// Respace implements Allocator.
func (s *Server) Respace(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in service.RespaceRequest
	if err := fromStruct(req, &in); err != nil {
		return nil, ToGRPCStatus(err)
	}
	out, err := s.svc.Respace(ctx, in)
	if err != nil {
		return nil, ToGRPCStatus(err)
	}
	return toStruct(out)
}

// RefreshHealth runs the service health checks and publishes the result for
// the overall server ("") and for ServiceName.
func (s *Server) RefreshHealth(ctx context.Context) allothealth.Status {
	status, _ := s.svc.Health(ctx)
	serving := healthpb.HealthCheckResponse_SERVING
	if status == allothealth.Unhealthy {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", serving)
	s.health.SetServingStatus(ServiceName, serving)
	return status
}

// Serve serves g on ln, refreshing health every interval, until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener, interval time.Duration) error {
	g := grpc.NewServer()
	s.Register(g)
	s.RefreshHealth(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve(ln) }()
	s.logger.InfoContext(ctx, "grpc server listening", "addr", ln.Addr().String())

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case err := <-errCh:
			return err
		case <-tick:
			s.RefreshHealth(ctx)
		case <-ctx.Done():
			s.health.Shutdown()
			g.GracefulStop()
			return nil
		}
	}
}

func fromStruct(in *structpb.Struct, dst any) error {
	data, err := protojson.Marshal(in)
	if err != nil {
		return errors.New(errors.CodeInvalidInput, "request is not valid JSON", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		if ae := errors.AsAllotError(err); ae.Code == errors.CodeInvalidInput {
			return ae
		}
		return errors.New(errors.CodeInvalidInput, "request does not match the expected shape", err)
	}
	return nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, ToGRPCStatus(errors.New(errors.CodeInternal, "encode response", err))
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, ToGRPCStatus(errors.New(errors.CodeInternal, "encode response", err))
	}
	return out, nil
}
