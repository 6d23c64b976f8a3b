package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCChecker queries the standard gRPC health service of an instance
// agent. It is an alternative control-channel readiness check for fleets
// that run an agent instead of exposing SSH.
type GRPCChecker struct {
	// Address is host:port of the gRPC server
	Address string

	// Service is the health service name; empty means the whole server
	Service string

	// Timeout bounds a single check (default: 5 seconds)
	Timeout time.Duration
}

// NewGRPCChecker creates a new gRPC health checker
func NewGRPCChecker(address string) *GRPCChecker {
	return &GRPCChecker{
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// GRPCCheckerFor returns a CheckerFunc querying service on port of each address
func GRPCCheckerFor(port int, service string, timeout time.Duration) CheckerFunc {
	return func(address string) Checker {
		c := NewGRPCChecker(net.JoinHostPort(address, strconv.Itoa(port))).WithTimeout(timeout)
		c.Service = service
		return c
	}
}

// Check performs the gRPC health check
func (g *GRPCChecker) Check(ctx context.Context) Result {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	conn, err := grpc.NewClient(g.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return failed(start, fmt.Sprintf("failed to create client: %v", err))
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(checkCtx, &healthpb.HealthCheckRequest{
		Service: g.Service,
	})
	if err != nil {
		return failed(start, fmt.Sprintf("health RPC failed: %v", err))
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return failed(start, fmt.Sprintf("service %q is %s", g.Service, resp.GetStatus()))
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("gRPC health %s SERVING", g.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (g *GRPCChecker) Type() CheckType {
	return CheckTypeGRPC
}

// WithTimeout sets the check timeout
func (g *GRPCChecker) WithTimeout(timeout time.Duration) *GRPCChecker {
	if timeout > 0 {
		g.Timeout = timeout
	}
	return g
}
