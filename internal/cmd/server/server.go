// Package server parses configuration and runs the brokerwell service
// process.
package server

import (
	"context"
	"flag"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	platformcmd "github.com/brokerwell/brokerwell/internal/platform/cmd"
	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/platform/timeouts"
	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

// Config holds server command configuration.
type Config struct {
	Port   int    `env:"BROKERWELL_PORT"    envDefault:"8080"`
	Addr   string `env:"BROKERWELL_ADDR"`
	DBPath string `env:"BROKERWELL_DB_PATH" envDefault:"brokerwell.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the sqlite database file")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the store, starts the gRPC shell, and serves until the context
// is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceServer, func(ctx context.Context) error {
		return serve(ctx, cfg)
	})
}

func serve(ctx context.Context, cfg Config) error {
	log := logging.For("server")
	defer logging.Sync()

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	addr := cfg.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Port)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", zap.String("addr", listener.Addr().String()), zap.String("db", cfg.DBPath))
		errCh <- grpcServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(timeouts.Shutdown):
			grpcServer.Stop()
		}
		return nil
	case err := <-errCh:
		return err
	}
}
