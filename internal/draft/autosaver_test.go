package draft

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/brokerwell/brokerwell/internal/storage"
)

// gatedDraftStore counts upserts and can hold them open to simulate a slow
// save.
type gatedDraftStore struct {
	mu      sync.Mutex
	saves   []storage.DraftRecord
	release chan struct{}
	started chan struct{}
}

func newGatedDraftStore() *gatedDraftStore {
	return &gatedDraftStore{
		release: make(chan struct{}),
		started: make(chan struct{}, 16),
	}
}

func (s *gatedDraftStore) UpsertDraft(ctx context.Context, record storage.DraftRecord) error {
	s.started <- struct{}{}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, record)
	return nil
}

func (s *gatedDraftStore) GetDraft(context.Context, storage.DraftKey) (storage.DraftRecord, error) {
	return storage.DraftRecord{}, storage.ErrNotFound
}

func (s *gatedDraftStore) DeleteDraft(context.Context, storage.DraftKey) error {
	return nil
}

func (s *gatedDraftStore) saved() []storage.DraftRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.DraftRecord(nil), s.saves...)
}

func newTestAutosaver(store storage.DraftStore) *Autosaver {
	autosaver := NewAutosaver(NewService(store))
	autosaver.quiescence = 30 * time.Millisecond
	autosaver.settle = 40 * time.Millisecond
	return autosaver
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestAutosaverCoalescesTouches(t *testing.T) {
	store := newGatedDraftStore()
	close(store.release)
	autosaver := newTestAutosaver(store)

	// Rapid touches inside the quiescence window collapse to one save with
	// the final payload.
	autosaver.Touch(testKey(), `{"step":1}`)
	autosaver.Touch(testKey(), `{"step":2}`)
	autosaver.Touch(testKey(), `{"step":3}`)

	waitFor(t, 2*time.Second, func() bool { return len(store.saved()) == 1 })
	if got := store.saved()[0].PayloadJSON; got != `{"step":3}` {
		t.Fatalf("expected latest payload saved, got %q", got)
	}

	// No second save sneaks in after the window.
	time.Sleep(3 * autosaver.quiescence)
	if count := len(store.saved()); count != 1 {
		t.Fatalf("expected a single save, got %d", count)
	}
}

func TestAutosaverDropsWindowDuringInFlightSave(t *testing.T) {
	store := newGatedDraftStore()
	autosaver := newTestAutosaver(store)

	autosaver.Touch(testKey(), `{"step":1}`)

	// Wait for the save to start, then touch again and let its window elapse
	// while the first save is still being held open.
	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("save never started")
	}
	autosaver.Touch(testKey(), `{"step":2}`)
	time.Sleep(3 * autosaver.quiescence)

	close(store.release)
	waitFor(t, 2*time.Second, func() bool { return len(store.saved()) == 1 })

	// The elapsed window was dropped, not queued.
	time.Sleep(3 * autosaver.quiescence)
	if count := len(store.saved()); count != 1 {
		t.Fatalf("expected dropped save, got %d saves", count)
	}

	// A fresh touch starts a new cycle that picks up residual changes.
	autosaver.Touch(testKey(), `{"step":3}`)
	waitFor(t, 2*time.Second, func() bool { return len(store.saved()) == 2 })
	if got := store.saved()[1].PayloadJSON; got != `{"step":3}` {
		t.Fatalf("expected residual payload saved, got %q", got)
	}
}

func TestAutosaverStatusLifecycle(t *testing.T) {
	store := newGatedDraftStore()
	autosaver := newTestAutosaver(store)

	if got := autosaver.Status(testKey()); got != StatusIdle {
		t.Fatalf("expected idle before any touch, got %q", got)
	}

	autosaver.Touch(testKey(), `{"step":1}`)
	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("save never started")
	}
	if got := autosaver.Status(testKey()); got != StatusSaving {
		t.Fatalf("expected saving while held open, got %q", got)
	}

	close(store.release)
	waitFor(t, 2*time.Second, func() bool { return autosaver.Status(testKey()) == StatusSaved })
	waitFor(t, 2*time.Second, func() bool { return autosaver.Status(testKey()) == StatusIdle })
}

func TestAutosaverFlushSavesImmediately(t *testing.T) {
	store := newGatedDraftStore()
	close(store.release)
	autosaver := newTestAutosaver(store)
	autosaver.quiescence = 10 * time.Second

	autosaver.Touch(testKey(), `{"step":1}`)
	autosaver.Flush(testKey())

	waitFor(t, 2*time.Second, func() bool { return len(store.saved()) == 1 })
}
