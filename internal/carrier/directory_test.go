package carrier

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brokerwell/brokerwell/internal/storage"
	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

func newTestDirectory(t *testing.T) (*Directory, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "brokerwell.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	directory := NewDirectory(store, store, store)
	directory.clock = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return directory, store
}

func putCarrier(t *testing.T, directory *Directory, id, name string, states, industries []string) {
	t.Helper()
	if _, err := directory.Put(context.Background(), PutInput{
		ID:            id,
		Name:          name,
		Email:         name + "@example.com",
		StateCodes:    states,
		IndustryCodes: industries,
	}); err != nil {
		t.Fatalf("put carrier %s: %v", id, err)
	}
}

func eligibilitySubmission(t *testing.T, store *sqlite.Store, templateID string) storage.SubmissionRecord {
	t.Helper()
	record := storage.SubmissionRecord{
		ID:           "sub-1",
		AgencyID:     "agency-1",
		ContactName:  "Dana Wheeler",
		ContactEmail: "dana@example.com",
		StateCode:    "OR",
		TemplateID:   templateID,
		Status:       "SUBMITTED",
		CreatedAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
	if err := store.PutSubmission(context.Background(), record); err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return record
}

func TestPutGeneratesID(t *testing.T) {
	directory, _ := newTestDirectory(t)

	record, err := directory.Put(context.Background(), PutInput{Name: "Summit Mutual"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if len(record.ID) != 26 {
		t.Fatalf("expected generated 26-char id, got %q", record.ID)
	}

	got, err := directory.Get(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Summit Mutual" {
		t.Fatalf("expected name persisted, got %q", got.Name)
	}
}

func TestPutRequiresName(t *testing.T) {
	directory, _ := newTestDirectory(t)

	if _, err := directory.Put(context.Background(), PutInput{}); err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestPutPreservesCreatedAtOnUpdate(t *testing.T) {
	directory, _ := newTestDirectory(t)
	ctx := context.Background()

	first, err := directory.Put(ctx, PutInput{ID: "c-1", Name: "Summit Mutual"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	directory.clock = func() time.Time {
		return time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)
	}
	second, err := directory.Put(ctx, PutInput{ID: "c-1", Name: "Summit Mutual West"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("expected createdAt preserved, got %v", second.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("expected updatedAt refreshed, got %v", second.UpdatedAt)
	}
}

func TestEligiblePrefersSentRoutingEntries(t *testing.T) {
	directory, store := newTestDirectory(t)
	ctx := context.Background()

	putCarrier(t, directory, "c-reached", "Reached Underwriters", []string{"NY"}, nil)
	putCarrier(t, directory, "c-local", "Local Underwriters", []string{"OR"}, nil)
	submission := eligibilitySubmission(t, store, "")

	if err := store.RecordRoutingOutcome(ctx, storage.RoutingLogRecord{
		ID:           "rl-1",
		SubmissionID: submission.ID,
		CarrierID:    "c-reached",
		Outcome:      "SENT",
		CreatedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("record routing outcome: %v", err)
	}

	eligible, err := directory.Eligible(ctx, submission)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != "c-reached" {
		t.Fatalf("expected only the reached carrier, got %+v", eligible)
	}
}

func TestEligibleIgnoresFailedRoutingEntries(t *testing.T) {
	directory, store := newTestDirectory(t)
	ctx := context.Background()

	putCarrier(t, directory, "c-failed", "Failed Underwriters", []string{"NY"}, nil)
	putCarrier(t, directory, "c-local", "Local Underwriters", []string{"OR"}, nil)
	submission := eligibilitySubmission(t, store, "")

	if err := store.RecordRoutingOutcome(ctx, storage.RoutingLogRecord{
		ID:           "rl-1",
		SubmissionID: submission.ID,
		CarrierID:    "c-failed",
		Outcome:      "FAILED",
		ErrorDetail:  "smtp timeout",
		CreatedAt:    time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("record routing outcome: %v", err)
	}

	// With no SENT entries the resolver falls through to the service-area tier.
	eligible, err := directory.Eligible(ctx, submission)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 1 || eligible[0].ID != "c-local" {
		t.Fatalf("expected the in-state carrier, got %+v", eligible)
	}
}

func TestEligibleFiltersByStateAndIndustry(t *testing.T) {
	directory, store := newTestDirectory(t)
	ctx := context.Background()

	if err := store.PutTemplate(ctx, storage.TemplateRecord{
		ID: "template-1", Name: "Restaurant GL", IndustryCode: "food-service",
	}); err != nil {
		t.Fatalf("put template: %v", err)
	}

	putCarrier(t, directory, "c-match", "Matching Underwriters", []string{"OR", "WA"}, []string{"food-service"})
	putCarrier(t, directory, "c-any-industry", "Any Industry Underwriters", []string{"OR"}, nil)
	putCarrier(t, directory, "c-wrong-industry", "Wrong Industry Underwriters", []string{"OR"}, []string{"construction"})
	putCarrier(t, directory, "c-wrong-state", "Wrong State Underwriters", []string{"CA"}, []string{"food-service"})

	submission := eligibilitySubmission(t, store, "template-1")
	eligible, err := directory.Eligible(ctx, submission)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}

	ids := make(map[string]bool)
	for _, record := range eligible {
		ids[record.ID] = true
	}
	if len(eligible) != 2 || !ids["c-match"] || !ids["c-any-industry"] {
		t.Fatalf("expected in-state carriers serving the industry, got %+v", eligible)
	}
}

func TestEligibleFallsBackToAllCarriers(t *testing.T) {
	directory, store := newTestDirectory(t)
	ctx := context.Background()

	putCarrier(t, directory, "c-1", "Summit Mutual", []string{"NY"}, nil)
	putCarrier(t, directory, "c-2", "Zenith Specialty", []string{"CA"}, nil)

	submission := eligibilitySubmission(t, store, "")
	eligible, err := directory.Eligible(ctx, submission)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(eligible) != 2 {
		t.Fatalf("expected every carrier in the fallback tier, got %d", len(eligible))
	}
}
