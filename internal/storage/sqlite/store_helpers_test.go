package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brokerwell/brokerwell/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "brokerwell.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testTime(offset time.Duration) time.Time {
	base := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return base.Add(offset)
}

func seedSubmission(t *testing.T, store *Store, id, status string) storage.SubmissionRecord {
	t.Helper()
	record := storage.SubmissionRecord{
		ID:           id,
		AgencyID:     "agency-1",
		ContactName:  "Dana Wheeler",
		ContactEmail: "dana@example.com",
		ContactPhone: "555-0142",
		AddressLine1: "12 Harbor St",
		City:         "Portland",
		StateCode:    "OR",
		PostalCode:   "97201",
		PayloadJSON:  `{"businessType":"bakery"}`,
		FileRefs:     []string{"files/coi.pdf"},
		CarrierID:    "carrier-1",
		TemplateID:   "template-1",
		Status:       status,
		CreatedAt:    testTime(0),
		UpdatedAt:    testTime(0),
	}
	if err := store.PutSubmission(context.Background(), record); err != nil {
		t.Fatalf("seed submission %s: %v", id, err)
	}
	return record
}

func seedQuote(t *testing.T, store *Store, id, submissionID, status string) storage.QuoteRecord {
	t.Helper()
	record := storage.QuoteRecord{
		ID:                    id,
		SubmissionID:          submissionID,
		CarrierID:             "carrier-1",
		CarrierQuoteUSD:       5000,
		WholesaleFeePercent:   10,
		WholesaleFeeAmountUSD: 500,
		BrokerFeeUSD:          150,
		PremiumTaxPercent:     2,
		PremiumTaxAmountUSD:   100,
		PolicyFeeUSD:          50,
		FinalAmountUSD:        5800,
		Status:                status,
		CreatedAt:             testTime(0),
		UpdatedAt:             testTime(0),
	}
	if err := store.PutQuote(context.Background(), record); err != nil {
		t.Fatalf("seed quote %s: %v", id, err)
	}
	return record
}
