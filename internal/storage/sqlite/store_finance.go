package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/brokerwell/brokerwell/internal/storage"
)

// PutFinancePlan inserts or overwrites the finance plan for a quote. A quote
// carries at most one plan; re-planning replaces the previous terms.
func (s *Store) PutFinancePlan(ctx context.Context, record storage.FinancePlanRecord) error {
	ctx, span := s.startSpan(ctx, "PutFinancePlan")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.QuoteID) == "" {
		return fmt.Errorf("quote id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO finance_plans (quote_id, down_payment_usd, annual_rate_percent, tenure_months, monthly_installment_usd, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(quote_id) DO UPDATE SET
	down_payment_usd = excluded.down_payment_usd,
	annual_rate_percent = excluded.annual_rate_percent,
	tenure_months = excluded.tenure_months,
	monthly_installment_usd = excluded.monthly_installment_usd,
	created_at = excluded.created_at
`,
		record.QuoteID,
		record.DownPaymentUSD,
		record.AnnualRatePercent,
		record.TenureMonths,
		record.MonthlyInstallmentUSD,
		toMillis(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put finance plan: %w", err)
	}
	return nil
}

// GetFinancePlan fetches the finance plan for a quote.
func (s *Store) GetFinancePlan(ctx context.Context, quoteID string) (storage.FinancePlanRecord, error) {
	ctx, span := s.startSpan(ctx, "GetFinancePlan")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.FinancePlanRecord{}, err
	}

	var record storage.FinancePlanRecord
	var createdAt int64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT quote_id, down_payment_usd, annual_rate_percent, tenure_months, monthly_installment_usd, created_at
FROM finance_plans WHERE quote_id = ?
`, quoteID).Scan(
		&record.QuoteID,
		&record.DownPaymentUSD,
		&record.AnnualRatePercent,
		&record.TenureMonths,
		&record.MonthlyInstallmentUSD,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FinancePlanRecord{}, storage.ErrNotFound
		}
		return storage.FinancePlanRecord{}, fmt.Errorf("get finance plan: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}
