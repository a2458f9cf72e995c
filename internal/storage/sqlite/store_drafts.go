package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/brokerwell/brokerwell/internal/storage"
)

func validateDraftKey(key storage.DraftKey) error {
	if strings.TrimSpace(key.FormType) == "" {
		return fmt.Errorf("draft form type is required")
	}
	if strings.TrimSpace(key.FormID) == "" {
		return fmt.Errorf("draft form id is required")
	}
	if strings.TrimSpace(key.OwnerID) == "" {
		return fmt.Errorf("draft owner id is required")
	}
	return nil
}

// UpsertDraft overwrites the payload for a draft key and refreshes
// lastSaved. The composite primary key guarantees a single live row per
// (formType, formID, ownerID).
func (s *Store) UpsertDraft(ctx context.Context, record storage.DraftRecord) error {
	ctx, span := s.startSpan(ctx, "UpsertDraft")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateDraftKey(record.Key); err != nil {
		return err
	}
	payload := record.PayloadJSON
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO drafts (form_type, form_id, owner_id, payload_json, last_saved)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(form_type, form_id, owner_id) DO UPDATE SET
	payload_json = excluded.payload_json,
	last_saved = excluded.last_saved
`,
		record.Key.FormType,
		record.Key.FormID,
		record.Key.OwnerID,
		payload,
		toMillis(record.LastSaved),
	)
	if err != nil {
		return fmt.Errorf("upsert draft: %w", err)
	}
	return nil
}

// GetDraft fetches the live draft for a key, or storage.ErrNotFound.
func (s *Store) GetDraft(ctx context.Context, key storage.DraftKey) (storage.DraftRecord, error) {
	ctx, span := s.startSpan(ctx, "GetDraft")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.DraftRecord{}, err
	}
	if err := validateDraftKey(key); err != nil {
		return storage.DraftRecord{}, err
	}

	var record storage.DraftRecord
	var lastSaved int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT payload_json, last_saved FROM drafts
WHERE form_type = ? AND form_id = ? AND owner_id = ?
`, key.FormType, key.FormID, key.OwnerID).Scan(&record.PayloadJSON, &lastSaved)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.DraftRecord{}, storage.ErrNotFound
		}
		return storage.DraftRecord{}, fmt.Errorf("get draft: %w", err)
	}
	record.Key = key
	record.LastSaved = fromMillis(lastSaved)
	return record, nil
}

// DeleteDraft removes the draft for a key. Deleting an absent draft is
// success, not an error.
func (s *Store) DeleteDraft(ctx context.Context, key storage.DraftKey) error {
	ctx, span := s.startSpan(ctx, "DeleteDraft")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := validateDraftKey(key); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM drafts WHERE form_type = ? AND form_id = ? AND owner_id = ?
`, key.FormType, key.FormID, key.OwnerID); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
