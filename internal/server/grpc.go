package server

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// HealthService is the service name metarev reports under in the gRPC
// health service, next to the server-wide "" entry.
const HealthService = "metarev"

// NewGRPCServer returns a gRPC server carrying the standard health service
// and reflection. Both health entries start out SERVING; call Shutdown on
// the returned health server before stopping so probes see NOT_SERVING.
func (s *Server) NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			s.recoveryInterceptor,
			s.loggingInterceptor,
		),
	)

	hs := health.NewServer()
	hs.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	return srv, hs
}

// loggingInterceptor logs each unary call with its duration. Failed calls
// log at error level.
func (s *Server) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Error("rpc completed", "method", info.FullMethod, "took", time.Since(start), "code", status.Code(err), "err", err)
	} else {
		s.logger.Debug("rpc completed", "method", info.FullMethod, "took", time.Since(start))
	}
	return resp, err
}

// recoveryInterceptor turns a handler panic into codes.Internal.
func (s *Server) recoveryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			s.logger.Error("rpc panic",
				"method", info.FullMethod,
				"panic", fmt.Sprint(rv),
				"stack", string(debug.Stack()),
			)
			err = status.Error(codes.Internal, "internal server error")
		}
	}()
	return handler(ctx, req)
}
