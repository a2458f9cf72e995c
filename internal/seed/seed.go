// Package seed loads demo reference data into a local database: the
// carriers, intake templates, and agencies the lifecycle services consult.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brokerwell/brokerwell/internal/storage"
	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

// Config holds seeding options.
type Config struct {
	DBPath  string
	Verbose bool
}

// DefaultConfig returns the default seeding options.
func DefaultConfig() Config {
	return Config{DBPath: "brokerwell.db"}
}

func carriers(now time.Time) []storage.CarrierRecord {
	return []storage.CarrierRecord{
		{
			ID:            "carrier-summit",
			Name:          "Summit Mutual",
			Email:         "submissions@summitmutual.example",
			StateCodes:    []string{"OR", "WA", "ID"},
			IndustryCodes: []string{"food-service", "retail"},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "carrier-zenith",
			Name:          "Zenith Specialty",
			Email:         "intake@zenithspecialty.example",
			StateCodes:    []string{"CA", "OR", "NV"},
			IndustryCodes: nil,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		{
			ID:            "carrier-aldrin",
			Name:          "Aldrin Underwriters",
			Email:         "desk@aldrinuw.example",
			StateCodes:    []string{"NY", "NJ", "CT"},
			IndustryCodes: []string{"construction"},
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
}

func templates() []storage.TemplateRecord {
	return []storage.TemplateRecord{
		{ID: "template-restaurant-gl", Name: "Restaurant General Liability", IndustryCode: "food-service"},
		{ID: "template-retail-bop", Name: "Retail Business Owner Policy", IndustryCode: "retail"},
		{ID: "template-contractor-gl", Name: "Contractor General Liability", IndustryCode: "construction"},
	}
}

func agencies() []storage.AgencyRecord {
	return []storage.AgencyRecord{
		{ID: "agency-hilltop", Name: "Hilltop Insurance Group", Email: "desk@hilltop.example"},
		{ID: "agency-riverbend", Name: "Riverbend Brokerage", Email: "quotes@riverbend.example"},
	}
}

// Run opens the database and upserts the demo reference data. Running twice
// is safe; every record is keyed.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	now := time.Now().UTC()
	for _, record := range carriers(now) {
		if err := store.PutCarrier(ctx, record); err != nil {
			return fmt.Errorf("seed carrier %s: %w", record.ID, err)
		}
		if cfg.Verbose {
			fmt.Printf("carrier %s (%s)\n", record.ID, record.Name)
		}
	}
	for _, record := range templates() {
		if err := store.PutTemplate(ctx, record); err != nil {
			return fmt.Errorf("seed template %s: %w", record.ID, err)
		}
		if cfg.Verbose {
			fmt.Printf("template %s (%s)\n", record.ID, record.Name)
		}
	}
	for _, record := range agencies() {
		if err := store.PutAgency(ctx, record); err != nil {
			return fmt.Errorf("seed agency %s: %w", record.ID, err)
		}
		if cfg.Verbose {
			fmt.Printf("agency %s (%s)\n", record.ID, record.Name)
		}
	}
	return nil
}
