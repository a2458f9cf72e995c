package draft

import (
	"context"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Autosave status states.
const (
	StatusIdle   = "idle"
	StatusSaving = "saving"
	StatusSaved  = "saved"
	StatusError  = "error"
)

const (
	// defaultQuiescence is how long a key must stay untouched before its
	// pending payload is saved.
	defaultQuiescence = 2 * time.Second
	// defaultSettle is how long the saved/error status lingers before the
	// machine returns to idle. Observability only.
	defaultSettle = 2 * time.Second
	// saveTimeout bounds one background save.
	saveTimeout = 5 * time.Second
)

// Autosaver debounces draft saves. A save fires after a quiescence window
// following the last Touch; at most one save per key is in flight, and a
// window elapsing mid-save is dropped rather than queued. The next touch
// starts a fresh cycle that picks up any residual changes.
type Autosaver struct {
	service    *Service
	quiescence time.Duration
	settle     time.Duration
	log        *zap.Logger

	mu      sync.Mutex
	entries map[storage.DraftKey]*autosaveEntry
}

type autosaveEntry struct {
	timer    *time.Timer
	settle   *time.Timer
	payload  string
	inFlight bool
	machine  *fsm.FSM
}

// NewAutosaver creates an Autosaver over the draft service using the default
// quiescence window.
func NewAutosaver(service *Service) *Autosaver {
	return &Autosaver{
		service:    service,
		quiescence: defaultQuiescence,
		settle:     defaultSettle,
		log:        logging.For("draft.autosave"),
		entries:    make(map[storage.DraftKey]*autosaveEntry),
	}
}

func newStatusMachine() *fsm.FSM {
	return fsm.NewFSM(
		StatusIdle,
		fsm.Events{
			{Name: "save", Src: []string{StatusIdle, StatusSaved, StatusError}, Dst: StatusSaving},
			{Name: "succeed", Src: []string{StatusSaving}, Dst: StatusSaved},
			{Name: "fail", Src: []string{StatusSaving}, Dst: StatusError},
			{Name: "settle", Src: []string{StatusSaved, StatusError}, Dst: StatusIdle},
		},
		fsm.Callbacks{},
	)
}

// Touch records the latest payload for a key and restarts its quiescence
// window.
func (a *Autosaver) Touch(key storage.DraftKey, payloadJSON string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[key]
	if !ok {
		entry = &autosaveEntry{machine: newStatusMachine()}
		a.entries[key] = entry
	}
	entry.payload = payloadJSON

	if entry.timer != nil {
		entry.timer.Stop()
	}
	entry.timer = time.AfterFunc(a.quiescence, func() { a.flush(key) })
}

// Status reports the save status for a key. Unknown keys are idle.
func (a *Autosaver) Status(key storage.DraftKey) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[key]
	if !ok {
		return StatusIdle
	}
	return entry.machine.Current()
}

// Flush saves any pending payload for a key immediately, bypassing the
// quiescence window. Used when a form closes.
func (a *Autosaver) Flush(key storage.DraftKey) {
	a.mu.Lock()
	entry, ok := a.entries[key]
	if ok && entry.timer != nil {
		entry.timer.Stop()
	}
	a.mu.Unlock()
	if ok {
		a.flush(key)
	}
}

// flush runs when a key's quiescence window elapses.
func (a *Autosaver) flush(key storage.DraftKey) {
	a.mu.Lock()
	entry, ok := a.entries[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	if entry.inFlight {
		// Dropped, not queued. The next touch schedules a fresh window.
		a.mu.Unlock()
		return
	}
	entry.inFlight = true
	payload := entry.payload
	if entry.settle != nil {
		entry.settle.Stop()
	}
	if err := entry.machine.Event(context.Background(), "save"); err != nil {
		a.log.Warn("autosave status transition", zap.Error(err))
	}
	a.mu.Unlock()

	go a.save(key, payload)
}

func (a *Autosaver) save(key storage.DraftKey, payloadJSON string) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	err := a.service.Save(ctx, key, payloadJSON)

	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[key]
	if !ok {
		return
	}
	entry.inFlight = false

	event := "succeed"
	if err != nil {
		event = "fail"
		a.log.Warn("autosave failed",
			zap.String("form_type", key.FormType),
			zap.String("form_id", key.FormID),
			zap.Error(err))
	}
	if ferr := entry.machine.Event(context.Background(), event); ferr != nil {
		a.log.Warn("autosave status transition", zap.Error(ferr))
	}

	entry.settle = time.AfterFunc(a.settle, func() { a.settleKey(key) })
}

// settleKey returns a key's status machine to idle after the display window.
func (a *Autosaver) settleKey(key storage.DraftKey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[key]
	if !ok {
		return
	}
	// A save may have started during the settle window; in that case the
	// transition is rejected and the machine stays in saving.
	_ = entry.machine.Event(context.Background(), "settle")
}
