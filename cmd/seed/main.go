// Package main provides a CLI for seeding a local development database with
// demo carriers, templates, and agencies.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	platformcmd "github.com/brokerwell/brokerwell/internal/platform/cmd"
	"github.com/brokerwell/brokerwell/internal/platform/config"
	"github.com/brokerwell/brokerwell/internal/seed"
)

func main() {
	cfg := seed.DefaultConfig()
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the sqlite database file")
	flag.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceSeed, func(ctx context.Context) error {
		return seed.Run(ctx, cfg)
	})
	if err != nil {
		config.Exitf("seed database: %v", err)
	}
}
