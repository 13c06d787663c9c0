package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vitalstream/vitalstream/agent/internal/config"
	"github.com/vitalstream/vitalstream/agent/internal/generator"
	"github.com/vitalstream/vitalstream/agent/internal/security"
	"github.com/vitalstream/vitalstream/agent/internal/shipper"
	"github.com/vitalstream/vitalstream/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "path to config file; empty runs with defaults")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vitalstream-agent starting", "config", *configPath)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
	}
	ac := cfg.Agent
	level.Set(ac.Log.SlogLevel())

	slog.Info("config loaded",
		"transport", ac.Transport,
		"server_url", ac.ServerURL,
		"patients", len(ac.Patients),
		"interval", ac.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	checkCerts(ctx, ac)

	sender, err := shipper.NewSender(ac)
	if err != nil {
		slog.Error("failed to build sender", "transport", ac.Transport, "err", err)
		os.Exit(1)
	}
	if ms, ok := sender.(*shipper.MQTTSender); ok {
		defer ms.Close()
	}

	var patients atomic.Pointer[[]string]
	patients.Store(&ac.Patients)

	// Hot reload: log level and patient list. Transport and interval need a
	// restart.
	if *configPath != "" {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				level.Set(next.Agent.Log.SlogLevel())
				patients.Store(&next.Agent.Patients)
				slog.Info("config reloaded", "patients", len(next.Agent.Patients))
			})
			if err != nil {
				slog.Warn("config watch disabled", "err", err)
			}
		}()
	}

	ship := shipper.New(ac, sender)
	go ship.Run(ctx)

	gen := generator.New(ac.Seed)
	ticker := time.NewTicker(ac.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("vitalstream-agent shutting down", "pending", ship.Pending())
			return
		case <-ticker.C:
			for _, id := range *patients.Load() {
				v := gen.Next()
				ship.Ship(types.NewReading(id, v))
				slog.Debug("reading generated", "patient", id, "vitals", v)
			}
		}
	}
}

// checkCerts logs the state of the server certificate and, in mtls mode,
// the agent's client certificate.
func checkCerts(ctx context.Context, ac config.AgentConfig) {
	var certs []*security.CertStatus
	if ac.Transport == config.TransportHTTP {
		tlsCfg, err := security.ClientTLS(ac.ServerAuth.CAFile)
		if err != nil {
			slog.Warn("server certificate check skipped", "err", err)
		} else if cs := security.Check(ctx, ac.ServerURL, tlsCfg); cs != nil {
			certs = append(certs, cs)
		}
	}
	if ac.ServerAuth.Mode == "mtls" {
		cs, err := security.CheckFile(ac.ServerAuth.CertFile, time.Now())
		if err != nil {
			slog.Warn("client certificate check failed", "err", err)
		} else {
			certs = append(certs, cs)
		}
	}

	for _, cs := range certs {
		attrs := []any{"source", cs.Source, "status", cs.Status, "days_left", cs.DaysLeft, "issuer", cs.Issuer}
		if cs.Status == security.StatusValid {
			slog.Info("certificate checked", attrs...)
		} else {
			slog.Warn("certificate needs attention", attrs...)
		}
	}
}
