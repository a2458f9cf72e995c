package routing

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/storage"
	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

type stubNotifier struct {
	result Result
	sent   []Message
}

func (n *stubNotifier) Send(_ context.Context, msg Message) Result {
	n.sent = append(n.sent, msg)
	return n.result
}

func newTestEngine(t *testing.T, notifier Notifier) (*Engine, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "brokerwell.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	engine := NewEngine(store, store, store, notifier)
	engine.clock = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return engine, store
}

func seedRoutableSubmission(t *testing.T, store *sqlite.Store, carrierID string) storage.SubmissionRecord {
	t.Helper()
	ctx := context.Background()
	if carrierID != "" {
		if err := store.PutCarrier(ctx, storage.CarrierRecord{
			ID:        carrierID,
			Name:      "Summit Mutual",
			Email:     "submissions@summitmutual.example",
			CreatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
			UpdatedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		}); err != nil {
			t.Fatalf("seed carrier: %v", err)
		}
	}
	record := storage.SubmissionRecord{
		ID:           "sub-1",
		AgencyID:     "agency-1",
		ContactName:  "Dana Wheeler",
		ContactEmail: "dana@example.com",
		City:         "Portland",
		StateCode:    "OR",
		FileRefs:     []string{"files/coi.pdf"},
		CarrierID:    carrierID,
		Status:       "SUBMITTED",
		CreatedAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	if err := store.PutSubmission(ctx, record); err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return record
}

func TestRouteToCarrierRecordsSentAndAdvances(t *testing.T) {
	notifier := &stubNotifier{result: Result{OK: true}}
	engine, store := newTestEngine(t, notifier)
	ctx := context.Background()
	seedRoutableSubmission(t, store, "carrier-1")

	entry, err := engine.RouteToCarrier(ctx, "sub-1")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if entry.Outcome != OutcomeSent || entry.Attempt != 0 {
		// Attempt is assigned by the store at insert time.
		t.Fatalf("unexpected entry %+v", entry)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].To != "submissions@summitmutual.example" {
		t.Fatalf("expected carrier email, got %q", notifier.sent[0].To)
	}
	if len(notifier.sent[0].Attachments) != 1 {
		t.Fatalf("expected file refs attached, got %v", notifier.sent[0].Attachments)
	}

	submission, err := store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if submission.Status != "ROUTED" {
		t.Fatalf("expected ROUTED, got %q", submission.Status)
	}
}

func TestRouteToCarrierRecordsFailureWithoutPropagating(t *testing.T) {
	notifier := &stubNotifier{result: Result{OK: false, Err: "smtp timeout"}}
	engine, store := newTestEngine(t, notifier)
	ctx := context.Background()
	seedRoutableSubmission(t, store, "carrier-1")

	entry, err := engine.RouteToCarrier(ctx, "sub-1")
	if err != nil {
		t.Fatalf("expected send failure swallowed, got %v", err)
	}
	if entry.Outcome != OutcomeFailed || entry.ErrorDetail != "smtp timeout" {
		t.Fatalf("expected FAILED entry with detail, got %+v", entry)
	}

	// The failed attempt still locks the submission into ROUTED.
	submission, err := store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if submission.Status != "ROUTED" {
		t.Fatalf("expected ROUTED after failed send, got %q", submission.Status)
	}

	attempts, err := engine.Attempts(ctx, "sub-1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Attempt != 1 {
		t.Fatalf("expected single numbered attempt, got %+v", attempts)
	}
}

func TestRouteToCarrierNumbersRetries(t *testing.T) {
	notifier := &stubNotifier{result: Result{OK: true}}
	engine, store := newTestEngine(t, notifier)
	ctx := context.Background()
	seedRoutableSubmission(t, store, "carrier-1")

	for i := 0; i < 2; i++ {
		if _, err := engine.RouteToCarrier(ctx, "sub-1"); err != nil {
			t.Fatalf("route %d: %v", i+1, err)
		}
	}

	attempts, err := engine.Attempts(ctx, "sub-1")
	if err != nil {
		t.Fatalf("attempts: %v", err)
	}
	if len(attempts) != 2 || attempts[0].Attempt != 1 || attempts[1].Attempt != 2 {
		t.Fatalf("expected attempts numbered 1 and 2, got %+v", attempts)
	}
}

func TestRouteToCarrierRequiresCarrierSelection(t *testing.T) {
	engine, store := newTestEngine(t, &stubNotifier{result: Result{OK: true}})
	seedRoutableSubmission(t, store, "")

	_, err := engine.RouteToCarrier(context.Background(), "sub-1")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeRoutingCarrierMissing {
		t.Fatalf("expected carrier missing error, got %v", err)
	}
}

func TestRouteToCarrierUnknownCarrier(t *testing.T) {
	notifier := &stubNotifier{result: Result{OK: true}}
	engine, store := newTestEngine(t, notifier)
	record := seedRoutableSubmission(t, store, "carrier-1")
	record.CarrierID = "ghost-carrier"
	if err := store.PutSubmission(context.Background(), record); err != nil {
		t.Fatalf("reseed submission: %v", err)
	}

	_, err := engine.RouteToCarrier(context.Background(), "sub-1")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeRoutingCarrierMissing {
		t.Fatalf("expected carrier missing error, got %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected no notification for unknown carrier, got %d", len(notifier.sent))
	}
}

func TestRouteToCarrierUnknownSubmission(t *testing.T) {
	engine, _ := newTestEngine(t, &stubNotifier{result: Result{OK: true}})

	_, err := engine.RouteToCarrier(context.Background(), "missing")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
