package seed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

func TestRunIsIdempotent(t *testing.T) {
	cfg := Config{DBPath: filepath.Join(t.TempDir(), "brokerwell.db")}
	ctx := context.Background()

	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Run(ctx, cfg); err != nil {
		t.Fatalf("second run: %v", err)
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	records, err := store.ListCarriers(ctx)
	if err != nil {
		t.Fatalf("list carriers: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 carriers after reseeding, got %d", len(records))
	}

	if _, err := store.GetTemplate(ctx, "template-restaurant-gl"); err != nil {
		t.Fatalf("get template: %v", err)
	}
	if _, err := store.GetAgency(ctx, "agency-hilltop"); err != nil {
		t.Fatalf("get agency: %v", err)
	}
}
