package probe

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vitalstream/vitalstream/server/internal/auth"
	"github.com/vitalstream/vitalstream/server/internal/config"
)

// Service is the name under which the record service reports status.
// The empty name reports overall server health.
const Service = "vitalstream.Ingest"

const checkTimeout = 2 * time.Second

// Counter is the store check used by Monitor. store.Store implements it.
type Counter interface {
	Count(ctx context.Context) (int64, error)
}

// NewServer returns a gRPC server with API-key auth and the health service
// registered, plus the health server used to change status.
func NewServer(a config.AuthConfig) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(auth.APIKeyInterceptor(a.Mode, a.EffectiveHeader(), a.Key())),
		grpc.StreamInterceptor(auth.APIKeyStreamInterceptor(a.Mode, a.EffectiveHeader(), a.Key())),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// Monitor checks st every interval and updates hs until ctx is cancelled,
// then marks everything NOT_SERVING.
func Monitor(ctx context.Context, hs *health.Server, st Counter, interval time.Duration) {
	check := func() {
		cctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if _, err := st.Count(cctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("probe: store check failed", "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", status)
		hs.SetServingStatus(Service, status)
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			check()
		}
	}
}
