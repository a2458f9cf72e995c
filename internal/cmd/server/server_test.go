package server

import (
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.DBPath != "brokerwell.db" {
		t.Fatalf("expected default db path, got %q", cfg.DBPath)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("BROKERWELL_PORT", "9090")
	t.Setenv("BROKERWELL_DB_PATH", "/tmp/env.db")

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/flag.db", "-addr", "127.0.0.1:7000"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected env port 9090, got %d", cfg.Port)
	}
	if cfg.DBPath != "/tmp/flag.db" {
		t.Fatalf("expected flag to override env db path, got %q", cfg.DBPath)
	}
	if cfg.Addr != "127.0.0.1:7000" {
		t.Fatalf("expected flag addr, got %q", cfg.Addr)
	}
}

func TestParseConfigRejectsBadFlag(t *testing.T) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-port", "not-a-port"}); err == nil {
		t.Fatal("expected flag parse error")
	}
}
