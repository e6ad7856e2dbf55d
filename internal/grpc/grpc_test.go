package grpc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T, token string) healthpb.HealthClient {
	t.Helper()
	unary, err := NewServiceAuthUnaryInterceptor(token)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	stream, err := NewServiceAuthStreamInterceptor(token)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(unary), grpc.StreamInterceptor(stream))
	healthpb.RegisterHealthServer(server, NewHealthServer())
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestHealthRequiresServiceToken(t *testing.T) {
	client := startServer(t, "s3cret")
	req := &healthpb.HealthCheckRequest{Service: ServiceName}

	_, err := client.Check(context.Background(), req)
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	_, err = client.Check(WithServiceToken(context.Background(), "wrong"), req)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	resp, err := client.Check(WithServiceToken(context.Background(), "s3cret"), req)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}
}

func TestInterceptorRequiresToken(t *testing.T) {
	if _, err := NewServiceAuthUnaryInterceptor(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := NewServiceAuthStreamInterceptor(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestRunChecks(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	got := runChecks(context.Background(), map[string]Check{"db": ok, "redis": ok}, 0, logger)
	if got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	got = runChecks(context.Background(), map[string]Check{"db": ok, "redis": down}, 0, logger)
	if got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}
