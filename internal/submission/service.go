// Package submission implements the intake-to-entry lifecycle for client
// insurance submissions.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/id"
	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/platform/timeouts"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Submission statuses.
const (
	StatusDraft     = "DRAFT"
	StatusSubmitted = "SUBMITTED"
	StatusRouted    = "ROUTED"
	StatusEntered   = "ENTERED"
)

// DraftFormType keys auto-saved intake forms in the draft store.
const DraftFormType = "submission"

// Event is one audit record emitted by a mutating operation.
type Event struct {
	Type         string
	SubmissionID string
	ActorID      string
	OccurredAt   time.Time
}

// ActivityLog receives audit events. Failures are isolated by the caller.
type ActivityLog interface {
	Record(ctx context.Context, event Event) error
}

// Service coordinates submission lifecycle operations.
type Service struct {
	store     storage.SubmissionStore
	templates storage.TemplateStore
	drafts    storage.DraftStore
	activity  ActivityLog
	clock     func() time.Time
	newID     func() (string, error)
	log       *zap.Logger
}

// NewService creates a Service with default clock and id generation. The
// activity log is optional; a nil sink disables audit events.
func NewService(store storage.SubmissionStore, templates storage.TemplateStore, drafts storage.DraftStore, activity ActivityLog) *Service {
	return &Service{
		store:     store,
		templates: templates,
		drafts:    drafts,
		activity:  activity,
		clock:     time.Now,
		newID:     id.NewID,
		log:       logging.For("submission"),
	}
}

// CreateInput carries the intake fields for a new submission.
type CreateInput struct {
	AgencyID     string
	ContactName  string
	ContactEmail string
	ContactPhone string
	AddressLine1 string
	AddressLine2 string
	City         string
	StateCode    string
	PostalCode   string
	Payload      map[string]any
	FileRefs     []string
	CarrierID    string
	TemplateID   string
	ActorID      string
}

// Create validates intake input and persists a SUBMITTED submission.
func (s *Service) Create(ctx context.Context, input CreateInput) (storage.SubmissionRecord, error) {
	if input.ContactName == "" || input.ContactEmail == "" {
		return storage.SubmissionRecord{}, apperrors.New(apperrors.CodeSubmissionContactMissing,
			"contact name and email are required")
	}
	if input.StateCode == "" {
		return storage.SubmissionRecord{}, apperrors.New(apperrors.CodeSubmissionStateCodeMissing,
			"business state code is required")
	}
	if input.TemplateID == "" {
		return storage.SubmissionRecord{}, apperrors.New(apperrors.CodeSubmissionTemplateMissing,
			"intake template is required")
	}
	if _, err := s.templates.GetTemplate(ctx, input.TemplateID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SubmissionRecord{}, apperrors.WithMetadata(apperrors.CodeSubmissionTemplateMissing,
				"intake template does not exist", map[string]string{"template_id": input.TemplateID})
		}
		return storage.SubmissionRecord{}, err
	}

	payloadJSON, err := encodePayload(input.Payload)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}

	submissionID, err := s.newID()
	if err != nil {
		return storage.SubmissionRecord{}, err
	}

	now := s.clock().UTC()
	record := storage.SubmissionRecord{
		ID:           submissionID,
		AgencyID:     input.AgencyID,
		ContactName:  input.ContactName,
		ContactEmail: input.ContactEmail,
		ContactPhone: input.ContactPhone,
		AddressLine1: input.AddressLine1,
		AddressLine2: input.AddressLine2,
		City:         input.City,
		StateCode:    input.StateCode,
		PostalCode:   input.PostalCode,
		PayloadJSON:  payloadJSON,
		FileRefs:     input.FileRefs,
		CarrierID:    input.CarrierID,
		TemplateID:   input.TemplateID,
		Status:       StatusSubmitted,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.PutSubmission(ctx, record); err != nil {
		return storage.SubmissionRecord{}, err
	}

	s.recordActivity(Event{Type: "submission.created", SubmissionID: record.ID, ActorID: input.ActorID, OccurredAt: now})
	return record, nil
}

// Get returns one submission by id.
func (s *Service) Get(ctx context.Context, submissionID string) (storage.SubmissionRecord, error) {
	record, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SubmissionRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		return storage.SubmissionRecord{}, err
	}
	return record, nil
}

// List returns a page of submissions matching the input filter.
func (s *Service) List(ctx context.Context, input storage.ListSubmissionsInput) (storage.SubmissionPage, error) {
	return s.store.ListSubmissions(ctx, input)
}

// Patch carries the client-editable fields of an update. Nil pointers leave
// the current value untouched; Payload and FileRefs replace wholesale when
// non-nil.
type Patch struct {
	ContactName  *string
	ContactEmail *string
	ContactPhone *string
	AddressLine1 *string
	AddressLine2 *string
	City         *string
	StateCode    *string
	PostalCode   *string
	Payload      map[string]any
	FileRefs     []string
	ActorID      string
}

// Update applies a patch to a submission's client-editable fields. Updates
// are allowed only while the submission is DRAFT or SUBMITTED and no routing
// attempt has been recorded; afterwards the content is locked because a
// carrier has already seen it.
func (s *Service) Update(ctx context.Context, submissionID string, patch Patch) (storage.SubmissionRecord, error) {
	record, err := s.Get(ctx, submissionID)
	if err != nil {
		return storage.SubmissionRecord{}, err
	}
	if record.Status != StatusDraft && record.Status != StatusSubmitted {
		return storage.SubmissionRecord{}, immutableError(record.Status)
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&record.ContactName, patch.ContactName)
	applyString(&record.ContactEmail, patch.ContactEmail)
	applyString(&record.ContactPhone, patch.ContactPhone)
	applyString(&record.AddressLine1, patch.AddressLine1)
	applyString(&record.AddressLine2, patch.AddressLine2)
	applyString(&record.City, patch.City)
	applyString(&record.StateCode, patch.StateCode)
	applyString(&record.PostalCode, patch.PostalCode)
	if patch.Payload != nil {
		payloadJSON, err := encodePayload(patch.Payload)
		if err != nil {
			return storage.SubmissionRecord{}, err
		}
		record.PayloadJSON = payloadJSON
	}
	if patch.FileRefs != nil {
		record.FileRefs = patch.FileRefs
	}

	if record.ContactName == "" || record.ContactEmail == "" {
		return storage.SubmissionRecord{}, apperrors.New(apperrors.CodeSubmissionContactMissing,
			"contact name and email are required")
	}

	now := s.clock().UTC()
	record.UpdatedAt = now
	if err := s.store.UpdateSubmissionContent(ctx, record, StatusDraft, StatusSubmitted); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Lost the race with routing or a status advance; re-read for the
			// current state so the guard message is accurate.
			current, getErr := s.store.GetSubmission(ctx, submissionID)
			if getErr == nil {
				return storage.SubmissionRecord{}, immutableError(current.Status)
			}
			return storage.SubmissionRecord{}, immutableError(record.Status)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return storage.SubmissionRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		return storage.SubmissionRecord{}, err
	}

	s.recordActivity(Event{Type: "submission.updated", SubmissionID: submissionID, ActorID: patch.ActorID, OccurredAt: now})
	return record, nil
}

// MarkRouted advances a SUBMITTED submission to ROUTED. Marking an already
// ROUTED submission is a no-op so routing retries stay idempotent.
func (s *Service) MarkRouted(ctx context.Context, submissionID string) error {
	now := s.clock().UTC()
	err := s.store.UpdateSubmissionStatus(ctx, submissionID, StatusSubmitted, StatusRouted, now)
	if err == nil {
		s.recordActivity(Event{Type: "submission.routed", SubmissionID: submissionID, OccurredAt: now})
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
	}
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := s.store.GetSubmission(ctx, submissionID)
		if getErr != nil {
			return getErr
		}
		if current.Status == StatusRouted {
			return nil
		}
		return transitionError(current.Status, StatusSubmitted)
	}
	return err
}

// AdvanceToEntered records that an operator has entered carrier terms,
// advancing ROUTED to ENTERED and discarding the intake draft.
func (s *Service) AdvanceToEntered(ctx context.Context, submissionID, actorID string) error {
	now := s.clock().UTC()
	err := s.store.UpdateSubmissionStatus(ctx, submissionID, StatusRouted, StatusEntered, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		if errors.Is(err, storage.ErrConflict) {
			current, getErr := s.store.GetSubmission(ctx, submissionID)
			if getErr != nil {
				return getErr
			}
			return transitionError(current.Status, StatusRouted)
		}
		return err
	}

	s.deleteDraft(ctx, submissionID)
	s.recordActivity(Event{Type: "submission.entered", SubmissionID: submissionID, ActorID: actorID, OccurredAt: now})
	return nil
}

// SetAdminNotes replaces the operator notes on a submission. Notes stay
// mutable after routing; they are operator annotations, not client content.
func (s *Service) SetAdminNotes(ctx context.Context, submissionID, notes, actorID string) error {
	now := s.clock().UTC()
	if err := s.store.SetSubmissionAdminNotes(ctx, submissionID, notes, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		return err
	}
	s.recordActivity(Event{Type: "submission.notes_set", SubmissionID: submissionID, ActorID: actorID, OccurredAt: now})
	return nil
}

// deleteDraft discards the intake draft for a finalized submission. Drafts
// are keyed by the owning agency.
func (s *Service) deleteDraft(ctx context.Context, submissionID string) {
	if s.drafts == nil {
		return
	}
	record, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		s.log.Warn("load submission for draft cleanup", zap.String("submission_id", submissionID), zap.Error(err))
		return
	}
	key := storage.DraftKey{FormType: DraftFormType, FormID: submissionID, OwnerID: record.AgencyID}
	if err := s.drafts.DeleteDraft(ctx, key); err != nil {
		s.log.Warn("delete intake draft", zap.String("submission_id", submissionID), zap.Error(err))
	}
}

// recordActivity dispatches an audit event without blocking or failing the
// calling operation.
func (s *Service) recordActivity(event Event) {
	if s.activity == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.ActivityLog)
		defer cancel()
		if err := s.activity.Record(ctx, event); err != nil {
			s.log.Warn("record activity event",
				zap.String("event_type", event.Type),
				zap.String("submission_id", event.SubmissionID),
				zap.Error(err))
		}
	}()
}

func immutableError(status string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeSubmissionImmutable,
		fmt.Sprintf("submission is %s and has been routed; content updates require DRAFT or SUBMITTED before routing", status),
		map[string]string{"status": status})
}

func transitionError(current, required string) *apperrors.Error {
	return apperrors.WithMetadata(apperrors.CodeSubmissionInvalidTransition,
		fmt.Sprintf("submission is %s, transition requires %s", current, required),
		map[string]string{"status": current, "required": required})
}

// encodePayload normalizes an intake form payload to canonical JSON through
// a protobuf value bag, rejecting values JSON cannot carry.
func encodePayload(payload map[string]any) (string, error) {
	if len(payload) == 0 {
		return "{}", nil
	}
	value, err := structpb.NewStruct(payload)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnknown, "encode form payload", err)
	}
	raw, err := protojson.Marshal(value)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeUnknown, "encode form payload", err)
	}
	return string(raw), nil
}

// DecodePayload parses a stored payload back into a value bag.
func DecodePayload(payloadJSON string) (map[string]any, error) {
	if payloadJSON == "" {
		return map[string]any{}, nil
	}
	var value structpb.Struct
	if err := protojson.Unmarshal([]byte(payloadJSON), &value); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "decode form payload", err)
	}
	return value.AsMap(), nil
}
