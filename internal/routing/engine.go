// Package routing sends submissions to their chosen carrier and records the
// attempt outcome.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/id"
	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/platform/timeouts"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Routing attempt outcomes.
const (
	OutcomeSent   = "SENT"
	OutcomeFailed = "FAILED"
)

// Message is one outbound carrier notification.
type Message struct {
	To           string
	Subject      string
	Body         string
	SubmissionID string
	CarrierID    string
	Attachments  []string
}

// Result reports a notification attempt. Failure is a value, not an error:
// the engine records it and keeps the submission moving.
type Result struct {
	OK  bool
	Err string
}

// Notifier delivers carrier notifications.
type Notifier interface {
	Send(ctx context.Context, msg Message) Result
}

// Engine routes submissions to carriers.
type Engine struct {
	submissions storage.SubmissionStore
	carriers    storage.CarrierStore
	routing     storage.RoutingLogStore
	notifier    Notifier
	clock       func() time.Time
	newID       func() (string, error)
	log         *zap.Logger
}

// NewEngine creates an Engine with default clock and id generation.
func NewEngine(submissions storage.SubmissionStore, carriers storage.CarrierStore, routing storage.RoutingLogStore, notifier Notifier) *Engine {
	return &Engine{
		submissions: submissions,
		carriers:    carriers,
		routing:     routing,
		notifier:    notifier,
		clock:       time.Now,
		newID:       id.NewID,
		log:         logging.For("routing"),
	}
}

// RouteToCarrier notifies the submission's chosen carrier and records the
// attempt. The log entry and the SUBMITTED to ROUTED advance commit together;
// a failed send is recorded with its error detail and still routes the
// submission, because the attempt itself is what locks the content.
func (e *Engine) RouteToCarrier(ctx context.Context, submissionID string) (storage.RoutingLogRecord, error) {
	submission, err := e.submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.RoutingLogRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		return storage.RoutingLogRecord{}, err
	}
	if submission.CarrierID == "" {
		return storage.RoutingLogRecord{}, apperrors.New(apperrors.CodeRoutingCarrierMissing,
			"submission has no carrier selected")
	}

	carrier, err := e.carriers.GetCarrier(ctx, submission.CarrierID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.RoutingLogRecord{}, apperrors.WithMetadata(apperrors.CodeRoutingCarrierMissing,
				"selected carrier does not exist",
				map[string]string{"carrier_id": submission.CarrierID})
		}
		return storage.RoutingLogRecord{}, err
	}

	result := e.send(ctx, submission, carrier)

	entryID, err := e.newID()
	if err != nil {
		return storage.RoutingLogRecord{}, err
	}
	entry := storage.RoutingLogRecord{
		ID:           entryID,
		SubmissionID: submission.ID,
		CarrierID:    carrier.ID,
		Outcome:      OutcomeSent,
		CreatedAt:    e.clock().UTC(),
	}
	if !result.OK {
		entry.Outcome = OutcomeFailed
		entry.ErrorDetail = result.Err
		e.log.Warn("carrier notification failed",
			zap.String("submission_id", submission.ID),
			zap.String("carrier_id", carrier.ID),
			zap.String("detail", result.Err))
	}

	if err := e.routing.RecordRoutingOutcome(ctx, entry); err != nil {
		return storage.RoutingLogRecord{}, err
	}
	return entry, nil
}

// Attempts returns the routing history for a submission, oldest first.
func (e *Engine) Attempts(ctx context.Context, submissionID string) ([]storage.RoutingLogRecord, error) {
	return e.routing.ListRoutingLog(ctx, submissionID)
}

func (e *Engine) send(ctx context.Context, submission storage.SubmissionRecord, carrier storage.CarrierRecord) Result {
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.Notify)
	defer cancel()
	return e.notifier.Send(sendCtx, Message{
		To:           carrier.Email,
		Subject:      fmt.Sprintf("New submission from %s, %s", submission.City, submission.StateCode),
		Body:         fmt.Sprintf("Submission %s for %s is ready for review.", submission.ID, submission.ContactName),
		SubmissionID: submission.ID,
		CarrierID:    carrier.ID,
		Attachments:  submission.FileRefs,
	})
}
