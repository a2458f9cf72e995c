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

const quoteColumns = `id, submission_id, carrier_id, carrier_quote_usd,
wholesale_fee_percent, wholesale_fee_amount_usd, broker_fee_usd,
premium_tax_percent, premium_tax_amount_usd, policy_fee_usd,
final_amount_usd, carrier_reference, status, posted_at, accepted_at,
accepted_by_user_id, created_at, updated_at`

// PutQuote inserts or overwrites a quote row.
func (s *Store) PutQuote(ctx context.Context, record storage.QuoteRecord) error {
	ctx, span := s.startSpan(ctx, "PutQuote")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("quote id is required")
	}
	if strings.TrimSpace(record.SubmissionID) == "" {
		return fmt.Errorf("submission id is required")
	}
	if strings.TrimSpace(record.Status) == "" {
		return fmt.Errorf("quote status is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO quotes (
	id, submission_id, carrier_id, carrier_quote_usd,
	wholesale_fee_percent, wholesale_fee_amount_usd, broker_fee_usd,
	premium_tax_percent, premium_tax_amount_usd, policy_fee_usd,
	final_amount_usd, carrier_reference, status, posted_at, accepted_at,
	accepted_by_user_id, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	submission_id = excluded.submission_id,
	carrier_id = excluded.carrier_id,
	carrier_quote_usd = excluded.carrier_quote_usd,
	wholesale_fee_percent = excluded.wholesale_fee_percent,
	wholesale_fee_amount_usd = excluded.wholesale_fee_amount_usd,
	broker_fee_usd = excluded.broker_fee_usd,
	premium_tax_percent = excluded.premium_tax_percent,
	premium_tax_amount_usd = excluded.premium_tax_amount_usd,
	policy_fee_usd = excluded.policy_fee_usd,
	final_amount_usd = excluded.final_amount_usd,
	carrier_reference = excluded.carrier_reference,
	status = excluded.status,
	posted_at = excluded.posted_at,
	accepted_at = excluded.accepted_at,
	accepted_by_user_id = excluded.accepted_by_user_id,
	updated_at = excluded.updated_at
`,
		record.ID,
		record.SubmissionID,
		record.CarrierID,
		record.CarrierQuoteUSD,
		record.WholesaleFeePercent,
		record.WholesaleFeeAmountUSD,
		record.BrokerFeeUSD,
		record.PremiumTaxPercent,
		record.PremiumTaxAmountUSD,
		record.PolicyFeeUSD,
		record.FinalAmountUSD,
		record.CarrierReference,
		record.Status,
		toNullMillis(record.PostedAt),
		toNullMillis(record.AcceptedAt),
		record.AcceptedByUserID,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put quote: %w", err)
	}
	return nil
}

// GetQuote fetches a quote by ID.
func (s *Store) GetQuote(ctx context.Context, quoteID string) (storage.QuoteRecord, error) {
	ctx, span := s.startSpan(ctx, "GetQuote")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.QuoteRecord{}, err
	}
	quoteID = strings.TrimSpace(quoteID)
	if quoteID == "" {
		return storage.QuoteRecord{}, fmt.Errorf("quote id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, quoteID)
	record, err := scanQuote(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.QuoteRecord{}, storage.ErrNotFound
		}
		return storage.QuoteRecord{}, fmt.Errorf("get quote: %w", err)
	}
	return record, nil
}

// ListQuotesBySubmission returns all quotes for a submission, newest first.
func (s *Store) ListQuotesBySubmission(ctx context.Context, submissionID string) ([]storage.QuoteRecord, error) {
	ctx, span := s.startSpan(ctx, "ListQuotesBySubmission")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+quoteColumns+` FROM quotes WHERE submission_id = ? ORDER BY created_at DESC, id DESC`,
		submissionID)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var records []storage.QuoteRecord
	for rows.Next() {
		record, err := scanQuote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return records, nil
}

// MarkQuotePosted transitions a quote from ENTERED to POSTED. The status
// guard lives in the WHERE clause so two concurrent posts cannot both
// succeed.
func (s *Store) MarkQuotePosted(ctx context.Context, quoteID, carrierReference string, postedAt time.Time) error {
	ctx, span := s.startSpan(ctx, "MarkQuotePosted")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE quotes SET status = 'POSTED', carrier_reference = ?, posted_at = ?, updated_at = ?
WHERE id = ? AND status = 'ENTERED'
`, carrierReference, toMillis(postedAt), toMillis(postedAt), quoteID)
	if err != nil {
		return fmt.Errorf("mark quote posted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark quote posted: %w", err)
	}
	if affected == 0 {
		return s.classifyMissOrConflict(ctx, "quotes", quoteID)
	}
	return nil
}

// MarkQuoteAccepted transitions a quote from POSTED to ACCEPTED_BY_AGENCY.
func (s *Store) MarkQuoteAccepted(ctx context.Context, quoteID, acceptedByUserID string, acceptedAt time.Time) error {
	ctx, span := s.startSpan(ctx, "MarkQuoteAccepted")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE quotes SET status = 'ACCEPTED_BY_AGENCY', accepted_at = ?, accepted_by_user_id = ?, updated_at = ?
WHERE id = ? AND status = 'POSTED'
`, toMillis(acceptedAt), acceptedByUserID, toMillis(acceptedAt), quoteID)
	if err != nil {
		return fmt.Errorf("mark quote accepted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark quote accepted: %w", err)
	}
	if affected == 0 {
		return s.classifyMissOrConflict(ctx, "quotes", quoteID)
	}
	return nil
}

func scanQuote(row rowScanner) (storage.QuoteRecord, error) {
	var record storage.QuoteRecord
	var postedAt, acceptedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(
		&record.ID,
		&record.SubmissionID,
		&record.CarrierID,
		&record.CarrierQuoteUSD,
		&record.WholesaleFeePercent,
		&record.WholesaleFeeAmountUSD,
		&record.BrokerFeeUSD,
		&record.PremiumTaxPercent,
		&record.PremiumTaxAmountUSD,
		&record.PolicyFeeUSD,
		&record.FinalAmountUSD,
		&record.CarrierReference,
		&record.Status,
		&postedAt,
		&acceptedAt,
		&record.AcceptedByUserID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	record.PostedAt = fromNullMillis(postedAt)
	record.AcceptedAt = fromNullMillis(acceptedAt)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
