package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brokerwell/brokerwell/internal/storage"
)

const submissionColumns = `id, agency_id, contact_name, contact_email, contact_phone,
address_line1, address_line2, city, state_code, postal_code,
payload_json, file_refs, carrier_id, template_id, status, admin_notes,
payment_completed, esign_completed, created_at, updated_at`

// PutSubmission inserts or overwrites a submission row. Document references
// are managed separately through AppendSubmissionDocument.
func (s *Store) PutSubmission(ctx context.Context, record storage.SubmissionRecord) error {
	ctx, span := s.startSpan(ctx, "PutSubmission")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("submission id is required")
	}
	if strings.TrimSpace(record.Status) == "" {
		return fmt.Errorf("submission status is required")
	}
	fileRefs, err := encodeStrings(record.FileRefs)
	if err != nil {
		return err
	}
	payload := record.PayloadJSON
	if strings.TrimSpace(payload) == "" {
		payload = "{}"
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO submissions (
	id, agency_id, contact_name, contact_email, contact_phone,
	address_line1, address_line2, city, state_code, postal_code,
	payload_json, file_refs, carrier_id, template_id, status, admin_notes,
	payment_completed, esign_completed, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	agency_id = excluded.agency_id,
	contact_name = excluded.contact_name,
	contact_email = excluded.contact_email,
	contact_phone = excluded.contact_phone,
	address_line1 = excluded.address_line1,
	address_line2 = excluded.address_line2,
	city = excluded.city,
	state_code = excluded.state_code,
	postal_code = excluded.postal_code,
	payload_json = excluded.payload_json,
	file_refs = excluded.file_refs,
	carrier_id = excluded.carrier_id,
	template_id = excluded.template_id,
	status = excluded.status,
	admin_notes = excluded.admin_notes,
	payment_completed = excluded.payment_completed,
	esign_completed = excluded.esign_completed,
	updated_at = excluded.updated_at
`,
		record.ID,
		record.AgencyID,
		record.ContactName,
		record.ContactEmail,
		record.ContactPhone,
		record.AddressLine1,
		record.AddressLine2,
		record.City,
		record.StateCode,
		record.PostalCode,
		payload,
		fileRefs,
		record.CarrierID,
		record.TemplateID,
		record.Status,
		record.AdminNotes,
		record.PaymentCompleted,
		record.ESignCompleted,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put submission: %w", err)
	}
	return nil
}

// GetSubmission fetches a submission and its generated document references.
func (s *Store) GetSubmission(ctx context.Context, submissionID string) (storage.SubmissionRecord, error) {
	ctx, span := s.startSpan(ctx, "GetSubmission")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.SubmissionRecord{}, err
	}
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return storage.SubmissionRecord{}, fmt.Errorf("submission id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, submissionID)
	record, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SubmissionRecord{}, storage.ErrNotFound
		}
		return storage.SubmissionRecord{}, fmt.Errorf("get submission: %w", err)
	}

	documents, err := s.listSubmissionDocuments(ctx, submissionID)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	record.SignedDocuments = documents
	return record, nil
}

// ListSubmissions returns a page of submissions, newest first, optionally
// narrowed by an AIP-160 filter expression.
func (s *Store) ListSubmissions(ctx context.Context, input storage.ListSubmissionsInput) (storage.SubmissionPage, error) {
	ctx, span := s.startSpan(ctx, "ListSubmissions")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.SubmissionPage{}, err
	}

	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	condition, err := ParseSubmissionFilter(input.Filter)
	if err != nil {
		return storage.SubmissionPage{}, err
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	var clauses []string
	var params []any
	if condition.Clause != "" {
		clauses = append(clauses, condition.Clause)
		params = append(params, condition.Params...)
	}
	if strings.TrimSpace(input.PageToken) != "" {
		millis, lastID, err := decodePageToken(input.PageToken)
		if err != nil {
			return storage.SubmissionPage{}, err
		}
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		params = append(params, millis, millis, lastID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	params = append(params, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return storage.SubmissionPage{}, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var records []storage.SubmissionRecord
	for rows.Next() {
		record, err := scanSubmission(rows)
		if err != nil {
			return storage.SubmissionPage{}, fmt.Errorf("scan submission: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return storage.SubmissionPage{}, fmt.Errorf("list submissions: %w", err)
	}

	page := storage.SubmissionPage{}
	if len(records) > pageSize {
		records = records[:pageSize]
		last := records[len(records)-1]
		page.NextPageToken = encodePageToken(last.CreatedAt, last.ID)
	}
	page.Submissions = records
	return page, nil
}

// UpdateSubmissionStatus advances a submission's status only when the
// current status matches fromStatus.
func (s *Store) UpdateSubmissionStatus(ctx context.Context, submissionID, fromStatus, toStatus string, updatedAt time.Time) error {
	ctx, span := s.startSpan(ctx, "UpdateSubmissionStatus")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?
`, toStatus, toMillis(updatedAt), submissionID, fromStatus)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if affected == 0 {
		return s.classifyMissOrConflict(ctx, "submissions", submissionID)
	}
	return nil
}

// UpdateSubmissionContent overwrites client-editable fields only while the
// status allows edits and no routing log entries exist.
func (s *Store) UpdateSubmissionContent(ctx context.Context, record storage.SubmissionRecord, allowedStatuses ...string) error {
	ctx, span := s.startSpan(ctx, "UpdateSubmissionContent")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if len(allowedStatuses) == 0 {
		return fmt.Errorf("allowed statuses are required")
	}
	fileRefs, err := encodeStrings(record.FileRefs)
	if err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allowedStatuses)), ", ")
	params := []any{
		record.ContactName,
		record.ContactEmail,
		record.ContactPhone,
		record.AddressLine1,
		record.AddressLine2,
		record.City,
		record.StateCode,
		record.PostalCode,
		record.PayloadJSON,
		fileRefs,
		toMillis(record.UpdatedAt),
		record.ID,
	}
	for _, status := range allowedStatuses {
		params = append(params, status)
	}
	params = append(params, record.ID)

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE submissions SET
	contact_name = ?, contact_email = ?, contact_phone = ?,
	address_line1 = ?, address_line2 = ?, city = ?, state_code = ?, postal_code = ?,
	payload_json = ?, file_refs = ?, updated_at = ?
WHERE id = ?
  AND status IN (`+placeholders+`)
  AND NOT EXISTS (SELECT 1 FROM routing_log WHERE submission_id = ?)
`, params...)
	if err != nil {
		return fmt.Errorf("update submission content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission content: %w", err)
	}
	if affected == 0 {
		return s.classifyMissOrConflict(ctx, "submissions", record.ID)
	}
	return nil
}

// SetSubmissionAdminNotes updates operator annotations. Notes stay editable
// after routing because they never reach the carrier.
func (s *Store) SetSubmissionAdminNotes(ctx context.Context, submissionID, notes string, updatedAt time.Time) error {
	ctx, span := s.startSpan(ctx, "SetSubmissionAdminNotes")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE submissions SET admin_notes = ?, updated_at = ? WHERE id = ?
`, notes, toMillis(updatedAt), submissionID)
	if err != nil {
		return fmt.Errorf("set submission admin notes: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set submission admin notes: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendSubmissionDocument appends a generated document reference. The
// (submission, document type) primary key enforces at most one record per
// type; a duplicate append reports ErrConflict without touching the list.
func (s *Store) AppendSubmissionDocument(ctx context.Context, submissionID string, document storage.GeneratedDocument) error {
	ctx, span := s.startSpan(ctx, "AppendSubmissionDocument")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if strings.TrimSpace(document.DocumentType) == "" {
		return fmt.Errorf("document type is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM submissions WHERE id = ?`, submissionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("check submission: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO submission_documents (
	submission_id, document_type, name, url, generated_at, signature_status
) VALUES (?, ?, ?, ?, ?, ?)
`,
		submissionID,
		document.DocumentType,
		document.Name,
		document.URL,
		toMillis(document.GeneratedAt),
		document.SignatureStatus,
	)
	if err != nil {
		return fmt.Errorf("append submission document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("append submission document: %w", err)
	}
	if affected == 0 {
		return storage.ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE submissions SET updated_at = ? WHERE id = ?`,
		toMillis(document.GeneratedAt), submissionID); err != nil {
		return fmt.Errorf("touch submission: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append document: %w", err)
	}
	return nil
}

func (s *Store) listSubmissionDocuments(ctx context.Context, submissionID string) ([]storage.GeneratedDocument, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT document_type, name, url, generated_at, signature_status
FROM submission_documents WHERE submission_id = ? ORDER BY generated_at, document_type
`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list submission documents: %w", err)
	}
	defer rows.Close()

	var documents []storage.GeneratedDocument
	for rows.Next() {
		var doc storage.GeneratedDocument
		var generatedAt int64
		if err := rows.Scan(&doc.DocumentType, &doc.Name, &doc.URL, &generatedAt, &doc.SignatureStatus); err != nil {
			return nil, fmt.Errorf("scan submission document: %w", err)
		}
		doc.GeneratedAt = fromMillis(generatedAt)
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submission documents: %w", err)
	}
	return documents, nil
}

// classifyMissOrConflict distinguishes a missing row from a failed guard.
func (s *Store) classifyMissOrConflict(ctx context.Context, table, id string) error {
	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("classify update miss: %w", err)
	}
	return storage.ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (storage.SubmissionRecord, error) {
	var record storage.SubmissionRecord
	var fileRefs string
	var createdAt, updatedAt int64
	err := row.Scan(
		&record.ID,
		&record.AgencyID,
		&record.ContactName,
		&record.ContactEmail,
		&record.ContactPhone,
		&record.AddressLine1,
		&record.AddressLine2,
		&record.City,
		&record.StateCode,
		&record.PostalCode,
		&record.PayloadJSON,
		&fileRefs,
		&record.CarrierID,
		&record.TemplateID,
		&record.Status,
		&record.AdminNotes,
		&record.PaymentCompleted,
		&record.ESignCompleted,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	refs, err := decodeStrings(fileRefs)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	record.FileRefs = refs
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
