// Package carrier maintains the carrier directory and answers eligibility
// queries for submission routing.
package carrier

import (
	"context"
	"time"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/id"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// RoutingOutcomeSent marks a routing attempt whose notification was delivered.
const RoutingOutcomeSent = "SENT"

// Directory resolves carriers for submissions.
type Directory struct {
	carriers  storage.CarrierStore
	templates storage.TemplateStore
	routing   storage.RoutingLogStore
	clock     func() time.Time
	newID     func() (string, error)
}

// NewDirectory creates a Directory with default dependencies.
func NewDirectory(carriers storage.CarrierStore, templates storage.TemplateStore, routing storage.RoutingLogStore) *Directory {
	return &Directory{
		carriers:  carriers,
		templates: templates,
		routing:   routing,
		clock:     time.Now,
		newID:     id.NewID,
	}
}

// PutInput carries the fields for creating or updating a carrier entry.
type PutInput struct {
	ID            string
	Name          string
	Email         string
	StateCodes    []string
	IndustryCodes []string
}

// Put creates or updates a carrier directory entry. A missing ID creates a
// new entry.
func (d *Directory) Put(ctx context.Context, input PutInput) (storage.CarrierRecord, error) {
	if input.Name == "" {
		return storage.CarrierRecord{}, apperrors.New(apperrors.CodeRoutingCarrierMissing, "carrier name is required")
	}

	now := d.clock().UTC()
	record := storage.CarrierRecord{
		ID:            input.ID,
		Name:          input.Name,
		Email:         input.Email,
		StateCodes:    input.StateCodes,
		IndustryCodes: input.IndustryCodes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if record.ID == "" {
		generated, err := d.newID()
		if err != nil {
			return storage.CarrierRecord{}, err
		}
		record.ID = generated
	} else if existing, err := d.carriers.GetCarrier(ctx, record.ID); err == nil {
		record.CreatedAt = existing.CreatedAt
	}

	if err := d.carriers.PutCarrier(ctx, record); err != nil {
		return storage.CarrierRecord{}, err
	}
	return record, nil
}

// Get returns one carrier by id.
func (d *Directory) Get(ctx context.Context, carrierID string) (storage.CarrierRecord, error) {
	record, err := d.carriers.GetCarrier(ctx, carrierID)
	if err != nil {
		if err == storage.ErrNotFound {
			return storage.CarrierRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "carrier not found", err)
		}
		return storage.CarrierRecord{}, err
	}
	return record, nil
}

// List returns all carrier directory entries ordered by name.
func (d *Directory) List(ctx context.Context) ([]storage.CarrierRecord, error) {
	return d.carriers.ListCarriers(ctx)
}

// Eligible resolves the carriers a submission may be routed to. Resolution
// walks three tiers and stops at the first one that yields any carriers:
//
//  1. carriers already reached for this submission (a SENT routing entry),
//  2. carriers whose service area covers the submission's state, narrowed by
//     the intake template's industry when the template declares one,
//  3. every carrier in the directory.
func (d *Directory) Eligible(ctx context.Context, submission storage.SubmissionRecord) ([]storage.CarrierRecord, error) {
	sent, err := d.sentCarriers(ctx, submission.ID)
	if err != nil {
		return nil, err
	}
	if len(sent) > 0 {
		return sent, nil
	}

	all, err := d.carriers.ListCarriers(ctx)
	if err != nil {
		return nil, err
	}

	industry := ""
	if submission.TemplateID != "" {
		template, err := d.templates.GetTemplate(ctx, submission.TemplateID)
		if err == nil {
			industry = template.IndustryCode
		} else if err != storage.ErrNotFound {
			return nil, err
		}
	}

	var matched []storage.CarrierRecord
	for _, candidate := range all {
		if !containsCode(candidate.StateCodes, submission.StateCode) {
			continue
		}
		if industry != "" && len(candidate.IndustryCodes) > 0 && !containsCode(candidate.IndustryCodes, industry) {
			continue
		}
		matched = append(matched, candidate)
	}
	if len(matched) > 0 {
		return matched, nil
	}

	return all, nil
}

// sentCarriers returns the carriers with a delivered routing attempt for the
// submission, in directory (name) order.
func (d *Directory) sentCarriers(ctx context.Context, submissionID string) ([]storage.CarrierRecord, error) {
	entries, err := d.routing.ListRoutingLog(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var records []storage.CarrierRecord
	for _, entry := range entries {
		if entry.Outcome != RoutingOutcomeSent || seen[entry.CarrierID] {
			continue
		}
		seen[entry.CarrierID] = true
		record, err := d.carriers.GetCarrier(ctx, entry.CarrierID)
		if err != nil {
			if err == storage.ErrNotFound {
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func containsCode(codes []string, code string) bool {
	for _, candidate := range codes {
		if candidate == code {
			return true
		}
	}
	return false
}
