// Package draft stores auto-saved form state. Drafts are strictly scratch:
// they are deleted the moment their target entity is finalized.
package draft

import (
	"context"
	"time"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Service wraps the draft store with key validation and save timestamps.
type Service struct {
	store storage.DraftStore
	clock func() time.Time
}

// NewService creates a draft Service.
func NewService(store storage.DraftStore) *Service {
	return &Service{store: store, clock: time.Now}
}

// Save upserts the draft payload for a key, refreshing lastSaved.
func (s *Service) Save(ctx context.Context, key storage.DraftKey, payloadJSON string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.store.UpsertDraft(ctx, storage.DraftRecord{
		Key:         key,
		PayloadJSON: payloadJSON,
		LastSaved:   s.clock().UTC(),
	})
}

// Load returns the stored draft for a key. Absence surfaces as
// storage.ErrNotFound; callers treat it as a value, not a failure.
func (s *Service) Load(ctx context.Context, key storage.DraftKey) (storage.DraftRecord, error) {
	if err := validateKey(key); err != nil {
		return storage.DraftRecord{}, err
	}
	return s.store.GetDraft(ctx, key)
}

// Delete removes the draft for a key. Deleting an absent draft succeeds.
func (s *Service) Delete(ctx context.Context, key storage.DraftKey) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.store.DeleteDraft(ctx, key)
}

func validateKey(key storage.DraftKey) error {
	if key.FormType == "" || key.FormID == "" || key.OwnerID == "" {
		return apperrors.New(apperrors.CodeDraftKeyInvalid,
			"draft key requires form type, form id, and owner id")
	}
	return nil
}
