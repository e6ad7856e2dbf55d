package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported for the portal.
const ServiceName = "campusportal"

// Check probes one dependency.
type Check func(ctx context.Context) error

// NewHealthServer returns a health server reporting SERVING until a
// dependency check fails.
func NewHealthServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return hs
}

// StartHealthChecks runs every check on each tick and flips the portal
// status to NOT_SERVING while any of them fails.
func StartHealthChecks(ctx context.Context, hs *health.Server, checks map[string]Check, interval, timeout time.Duration, logger *slog.Logger) {
	if len(checks) == 0 {
		return
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				hs.Shutdown()
				return
			case <-ticker.C:
				hs.SetServingStatus(ServiceName, runChecks(ctx, checks, timeout, logger))
			}
		}
	}()
}

func runChecks(ctx context.Context, checks map[string]Check, timeout time.Duration, logger *slog.Logger) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	for name, check := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := check(checkCtx)
		cancel()
		if err != nil {
			logger.Warn("health check failed", "dependency", name, "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return status
}
