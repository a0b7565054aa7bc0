// rocketshoes-cartservice/services/health_service.go

package services

import (
	"context"

	"github.com/norun9/rocketshoes-cartservice/cartstore"
	"github.com/sirupsen/logrus"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthCheckService implements the gRPC health check.
type HealthCheckService struct {
	store cartstore.ICartStore
	log   logrus.FieldLogger
	healthpb.UnimplementedHealthServer
}

// NewHealthCheckService constructor.
func NewHealthCheckService(store cartstore.ICartStore, log logrus.FieldLogger) *HealthCheckService {
	return &HealthCheckService{store: store, log: log}
}

// Check RPC: reports SERVING when the cart store answers a ping.
func (h *HealthCheckService) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	h.log.Debugf("HealthCheckService: Check called (service=%q)", req.GetService())
	if h.store.Ping(ctx) {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
}
