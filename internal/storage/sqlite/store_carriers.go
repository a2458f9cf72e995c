package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/brokerwell/brokerwell/internal/storage"
)

// PutCarrier inserts or overwrites a carrier directory entry.
func (s *Store) PutCarrier(ctx context.Context, record storage.CarrierRecord) error {
	ctx, span := s.startSpan(ctx, "PutCarrier")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("carrier id is required")
	}
	if strings.TrimSpace(record.Name) == "" {
		return fmt.Errorf("carrier name is required")
	}
	stateCodes, err := encodeStrings(record.StateCodes)
	if err != nil {
		return err
	}
	industryCodes, err := encodeStrings(record.IndustryCodes)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO carriers (id, name, email, state_codes, industry_codes, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	email = excluded.email,
	state_codes = excluded.state_codes,
	industry_codes = excluded.industry_codes,
	updated_at = excluded.updated_at
`,
		record.ID,
		record.Name,
		record.Email,
		stateCodes,
		industryCodes,
		toMillis(record.CreatedAt),
		toMillis(record.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put carrier: %w", err)
	}
	return nil
}

// GetCarrier fetches a carrier by ID.
func (s *Store) GetCarrier(ctx context.Context, carrierID string) (storage.CarrierRecord, error) {
	ctx, span := s.startSpan(ctx, "GetCarrier")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.CarrierRecord{}, err
	}
	carrierID = strings.TrimSpace(carrierID)
	if carrierID == "" {
		return storage.CarrierRecord{}, fmt.Errorf("carrier id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, email, state_codes, industry_codes, created_at, updated_at
FROM carriers WHERE id = ?
`, carrierID)
	record, err := scanCarrier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CarrierRecord{}, storage.ErrNotFound
		}
		return storage.CarrierRecord{}, fmt.Errorf("get carrier: %w", err)
	}
	return record, nil
}

// ListCarriers returns every carrier directory entry ordered by name.
func (s *Store) ListCarriers(ctx context.Context) ([]storage.CarrierRecord, error) {
	ctx, span := s.startSpan(ctx, "ListCarriers")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, email, state_codes, industry_codes, created_at, updated_at
FROM carriers ORDER BY name, id
`)
	if err != nil {
		return nil, fmt.Errorf("list carriers: %w", err)
	}
	defer rows.Close()

	var records []storage.CarrierRecord
	for rows.Next() {
		record, err := scanCarrier(rows)
		if err != nil {
			return nil, fmt.Errorf("scan carrier: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list carriers: %w", err)
	}
	return records, nil
}

func scanCarrier(row rowScanner) (storage.CarrierRecord, error) {
	var record storage.CarrierRecord
	var stateCodes, industryCodes string
	var createdAt, updatedAt int64
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.Email,
		&stateCodes,
		&industryCodes,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return storage.CarrierRecord{}, err
	}
	states, err := decodeStrings(stateCodes)
	if err != nil {
		return storage.CarrierRecord{}, err
	}
	industries, err := decodeStrings(industryCodes)
	if err != nil {
		return storage.CarrierRecord{}, err
	}
	record.StateCodes = states
	record.IndustryCodes = industries
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

// PutTemplate inserts or overwrites an intake template.
func (s *Store) PutTemplate(ctx context.Context, record storage.TemplateRecord) error {
	ctx, span := s.startSpan(ctx, "PutTemplate")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("template id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO templates (id, name, industry_code) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	industry_code = excluded.industry_code
`, record.ID, record.Name, record.IndustryCode)
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

// GetTemplate fetches an intake template by ID.
func (s *Store) GetTemplate(ctx context.Context, templateID string) (storage.TemplateRecord, error) {
	ctx, span := s.startSpan(ctx, "GetTemplate")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.TemplateRecord{}, err
	}

	var record storage.TemplateRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, industry_code FROM templates WHERE id = ?
`, templateID).Scan(&record.ID, &record.Name, &record.IndustryCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TemplateRecord{}, storage.ErrNotFound
		}
		return storage.TemplateRecord{}, fmt.Errorf("get template: %w", err)
	}
	return record, nil
}

// PutAgency inserts or overwrites a retail agency.
func (s *Store) PutAgency(ctx context.Context, record storage.AgencyRecord) error {
	ctx, span := s.startSpan(ctx, "PutAgency")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("agency id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO agencies (id, name, email) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	email = excluded.email
`, record.ID, record.Name, record.Email)
	if err != nil {
		return fmt.Errorf("put agency: %w", err)
	}
	return nil
}

// GetAgency fetches a retail agency by ID.
func (s *Store) GetAgency(ctx context.Context, agencyID string) (storage.AgencyRecord, error) {
	ctx, span := s.startSpan(ctx, "GetAgency")
	defer span.End()
	if err := s.ready(ctx); err != nil {
		return storage.AgencyRecord{}, err
	}

	var record storage.AgencyRecord
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, email FROM agencies WHERE id = ?
`, agencyID).Scan(&record.ID, &record.Name, &record.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AgencyRecord{}, storage.ErrNotFound
		}
		return storage.AgencyRecord{}, fmt.Errorf("get agency: %w", err)
	}
	return record, nil
}
