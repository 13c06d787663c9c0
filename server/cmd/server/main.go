package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vitalstream/vitalstream/server/internal/alerts"
	"github.com/vitalstream/vitalstream/server/internal/api"
	"github.com/vitalstream/vitalstream/server/internal/auth"
	"github.com/vitalstream/vitalstream/server/internal/config"
	"github.com/vitalstream/vitalstream/server/internal/hub"
	"github.com/vitalstream/vitalstream/server/internal/ingest"
	"github.com/vitalstream/vitalstream/server/internal/metrics"
	"github.com/vitalstream/vitalstream/server/internal/probe"
	"github.com/vitalstream/vitalstream/server/internal/receiver"
	"github.com/vitalstream/vitalstream/server/internal/relay"
	"github.com/vitalstream/vitalstream/server/internal/store"
	"github.com/vitalstream/vitalstream/server/internal/stream"
)

const probeInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to config file; empty runs with defaults")
	uiDir := flag.String("ui-dir", "", "serve the dashboard static files from this directory; leave empty to disable")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vitalstream-server starting", "config", *configPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, *configPath, *uiDir, level)
	cancel()
	if err != nil {
		slog.Error("vitalstream-server failed", "err", err)
		os.Exit(1)
	}
}

// run starts every configured component and blocks until ctx is cancelled.
// Startup failures are returned after the components already started have
// been released.
func run(ctx context.Context, configPath, uiDir string, level *slog.LevelVar) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	sc := cfg.Server
	level.Set(sc.Log.SlogLevel())

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"grpc_port", sc.GRPCPort,
		"auth_mode", sc.Auth.Mode,
		"store", sc.Store.Driver,
		"mqtt", sc.MQTT.Enabled,
		"redis", sc.Redis.Enabled,
	)

	st, closeStore, err := openStore(ctx, sc.Store)
	if err != nil {
		return fmt.Errorf("open %s record store: %w", sc.Store.Driver, err)
	}
	defer closeStore()

	// Broadcast hub: one subscriber per live stream plus the optional relay.
	events := hub.New(sc.Stream.BufferSize)
	defer events.Close()

	m := metrics.New()
	m.WatchHub(events)

	// Deferred before every ingest source so it closes after all of them.
	dispatcher := alerts.New(sc.Alerts)
	defer dispatcher.Close()

	svc := ingest.New(st, events,
		ingest.WithNotifier(dispatcher),
		ingest.WithObserver(m),
	)

	// Hot reload: log level and notifier targets only. Ports, store and
	// transports need a restart.
	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(next *config.Config) {
				level.Set(next.Server.Log.SlogLevel())
				dispatcher.Reload(next.Server.Alerts)
				slog.Info("config reloaded", "log_level", next.Server.Log.SlogLevel().String())
			})
			if err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
		}()
	}

	// gRPC health service with optional API key authentication.
	if sc.GRPCPort != 0 {
		grpcSrv, hs := probe.NewServer(sc.Auth)
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
		if err != nil {
			return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
		}
		go probe.Monitor(ctx, hs, st, probeInterval)
		go func() {
			slog.Info("gRPC health listening", "port", sc.GRPCPort)
			if err := grpcSrv.Serve(lis); err != nil {
				slog.Error("gRPC server stopped", "err", err)
			}
		}()
		defer grpcSrv.GracefulStop()
	}

	if sc.MQTT.Enabled {
		rcv, err := receiver.Connect(sc.MQTT, svc)
		if err != nil {
			return fmt.Errorf("start MQTT receiver: %w", err)
		}
		defer rcv.Close()
	}

	if sc.Redis.Enabled {
		client, err := relay.Dial(ctx, sc.Redis)
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer client.Close()
		go relay.New(client, events, sc.Redis.Stream, sc.Redis.MaxLen).Run(ctx)
	}

	streams := stream.New(events, sc.Stream.Heartbeat)

	opts := api.Options{
		Alerts:      dispatcher,
		Subscribers: events.Count,
		IngestAuth:  auth.APIKeyMiddleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key()),
	}
	// Optional: serve a pre-built dashboard from a local directory.
	// Unknown paths fall back to index.html for client-side routing.
	if uiDir != "" {
		opts.Fallback = spaHandler(uiDir)
		slog.Info("serving UI static files", "dir", uiDir)
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/stream", streams.ServeSSE)
	httpMux.HandleFunc("/ws/stream", streams.ServeWS)
	httpMux.Handle("/metrics", m.Handler())
	httpMux.Handle("/", api.New(svc, opts))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.HTTPPort))
	if err != nil {
		return fmt.Errorf("listen on HTTP port %d: %w", sc.HTTPPort, err)
	}
	httpSrv := &http.Server{
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("HTTP server: %w", err)
	}
	slog.Info("vitalstream-server shutting down")

	// Closing the hub ends every open stream so Shutdown does not wait on
	// them. The remaining deferred calls then run in reverse order: Redis,
	// MQTT receiver, gRPC, alert dispatcher, store.
	cancel()
	events.Close()
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	return runErr
}

// openStore returns the configured record store and its cleanup func.
func openStore(ctx context.Context, c config.StoreConfig) (store.Store, func(), error) {
	switch c.Driver {
	case "postgres":
		pg, err := store.OpenPostgres(ctx, c.DSN(), store.PostgresOptions{MaxConns: c.MaxConns, MaxIdle: c.MaxIdle})
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	default:
		return store.NewMemory(), func() {}, nil
	}
}

func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
}
