package server

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/metarev/internal/client"
)

func TestGRPCServer_Health(t *testing.T) {
	s, _, _ := newTestServer()
	srv, hs := s.NewGRPCServer()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	addr := lis.Addr().String()

	for _, service := range []string{"", HealthService} {
		got, err := client.CheckGRPCHealth(ctx, addr, service)
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		if got != "serving" {
			t.Errorf("Check(%q) = %q, want serving", service, got)
		}
	}

	if _, err := client.CheckGRPCHealth(ctx, addr, "nope"); status.Code(err) != codes.NotFound {
		t.Errorf("unknown service: err = %v, want NotFound", err)
	}

	hs.Shutdown()
	if got, err := client.CheckGRPCHealth(ctx, addr, HealthService); err != nil || got != "not_serving" {
		t.Errorf("after shutdown = %q, %v; want not_serving", got, err)
	}
}

func TestGRPCServer_Services(t *testing.T) {
	s, _, _ := newTestServer()
	srv, _ := s.NewGRPCServer()

	info := srv.GetServiceInfo()
	for _, name := range []string{"grpc.health.v1.Health", "grpc.reflection.v1.ServerReflection"} {
		if _, ok := info[name]; !ok {
			t.Errorf("service %s not registered", name)
		}
	}
}

func TestRecoveryInterceptor(t *testing.T) {
	var buf bytes.Buffer
	s, _, _ := newTestServer()
	s.logger = slog.New(slog.NewTextHandler(&buf, nil))

	_, err := s.recoveryInterceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(context.Context, any) (any, error) { panic("boom") })
	if status.Code(err) != codes.Internal {
		t.Fatalf("err = %v, want Internal", err)
	}
	if !strings.Contains(buf.String(), "panic=boom") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}
