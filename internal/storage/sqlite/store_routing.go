package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/brokerwell/brokerwell/internal/storage"
)

// ListRoutingLog returns all routing attempts for a submission in creation
// order. Entries are immutable once written.
func (s *Store) ListRoutingLog(ctx context.Context, submissionID string) ([]storage.RoutingLogRecord, error) {
	ctx, span := s.startSpan(ctx, "ListRoutingLog")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, submission_id, carrier_id, attempt, outcome, error_detail, created_at
FROM routing_log WHERE submission_id = ? ORDER BY created_at, attempt
`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list routing log: %w", err)
	}
	defer rows.Close()

	var records []storage.RoutingLogRecord
	for rows.Next() {
		var record storage.RoutingLogRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.SubmissionID,
			&record.CarrierID,
			&record.Attempt,
			&record.Outcome,
			&record.ErrorDetail,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan routing log entry: %w", err)
		}
		record.CreatedAt = fromMillis(createdAt)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list routing log: %w", err)
	}
	return records, nil
}

// RecordRoutingOutcome appends one routing log entry and advances the
// submission from SUBMITTED to ROUTED in the same transaction. A routing
// attempt advances the status whether the notification was delivered or
// not; when the submission is already ROUTED or beyond, only the log entry
// is written.
func (s *Store) RecordRoutingOutcome(ctx context.Context, entry storage.RoutingLogRecord) error {
	ctx, span := s.startSpan(ctx, "RecordRoutingOutcome")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("routing log id is required")
	}
	if strings.TrimSpace(entry.SubmissionID) == "" {
		return fmt.Errorf("submission id is required")
	}
	if strings.TrimSpace(entry.CarrierID) == "" {
		return fmt.Errorf("carrier id is required")
	}
	if entry.Outcome != "SENT" && entry.Outcome != "FAILED" {
		return fmt.Errorf("routing outcome must be SENT or FAILED, got %q", entry.Outcome)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record routing outcome: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	attempt := entry.Attempt
	if attempt <= 0 {
		// Next attempt number for this submission+carrier pair.
		if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(attempt), 0) + 1 FROM routing_log WHERE submission_id = ? AND carrier_id = ?
`, entry.SubmissionID, entry.CarrierID).Scan(&attempt); err != nil {
			return fmt.Errorf("next routing attempt: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO routing_log (id, submission_id, carrier_id, attempt, outcome, error_detail, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		entry.ID,
		entry.SubmissionID,
		entry.CarrierID,
		attempt,
		entry.Outcome,
		entry.ErrorDetail,
		toMillis(entry.CreatedAt),
	); err != nil {
		return fmt.Errorf("append routing log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE submissions SET status = 'ROUTED', updated_at = ?
WHERE id = ? AND status = 'SUBMITTED'
`, toMillis(entry.CreatedAt), entry.SubmissionID); err != nil {
		return fmt.Errorf("advance submission to routed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record routing outcome: %w", err)
	}
	return nil
}
