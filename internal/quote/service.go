// Package quote implements the quote lifecycle: operator entry, posting to
// the agency, agency acceptance, and premium financing.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/id"
	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/platform/money"
	"github.com/brokerwell/brokerwell/internal/platform/timeouts"
	"github.com/brokerwell/brokerwell/internal/storage"
)

// Quote statuses.
const (
	StatusEntered  = "ENTERED"
	StatusPosted   = "POSTED"
	StatusAccepted = "ACCEPTED_BY_AGENCY"
)

// DraftFormType keys auto-saved quote entry forms in the draft store.
const DraftFormType = "quote"

// defaultTaxRatePercent applies when the premium tax rate for a state is
// unknown.
const defaultTaxRatePercent = 2.0

// ErrUnknownState signals a tax lookup for a state with no configured rate.
var ErrUnknownState = errors.New("unknown state code")

// TaxRates looks up the premium tax rate for a state. Implementations return
// ErrUnknownState when no rate is configured; the service falls back to the
// default rate.
type TaxRates interface {
	Rate(ctx context.Context, stateCode string) (float64, error)
}

// Message is one outbound agency notification.
type Message struct {
	To      string
	Subject string
	Body    string
	QuoteID string
}

// Result reports a notification attempt; failure is a value.
type Result struct {
	OK  bool
	Err string
}

// Notifier delivers agency notifications.
type Notifier interface {
	Send(ctx context.Context, msg Message) Result
}

// Service coordinates quote lifecycle operations.
type Service struct {
	quotes      storage.QuoteStore
	submissions storage.SubmissionStore
	agencies    storage.AgencyStore
	finance     storage.FinancePlanStore
	drafts      storage.DraftStore
	taxes       TaxRates
	notifier    Notifier
	clock       func() time.Time
	newID       func() (string, error)
	log         *zap.Logger
}

// NewService creates a Service with default clock and id generation. The
// notifier and tax lookup are optional; without a tax lookup every quote
// carries the default rate.
func NewService(
	quotes storage.QuoteStore,
	submissions storage.SubmissionStore,
	agencies storage.AgencyStore,
	finance storage.FinancePlanStore,
	drafts storage.DraftStore,
	taxes TaxRates,
	notifier Notifier,
) *Service {
	return &Service{
		quotes:      quotes,
		submissions: submissions,
		agencies:    agencies,
		finance:     finance,
		drafts:      drafts,
		taxes:       taxes,
		notifier:    notifier,
		clock:       time.Now,
		newID:       id.NewID,
		log:         logging.For("quote"),
	}
}

// EnterInput carries operator-entered carrier terms.
type EnterInput struct {
	SubmissionID        string
	CarrierQuoteUSD     float64
	WholesaleFeePercent float64
	BrokerFeeUSD        float64
	PolicyFeeUSD        float64
}

// Enter records carrier terms as a new ENTERED quote. The premium tax rate
// comes from the submission's state; totals are derived at entry.
func (s *Service) Enter(ctx context.Context, input EnterInput) (storage.QuoteRecord, error) {
	if input.CarrierQuoteUSD <= 0 {
		return storage.QuoteRecord{}, apperrors.New(apperrors.CodeQuotePremiumMissing,
			"carrier quote must be greater than zero")
	}
	if input.WholesaleFeePercent < 0 {
		return storage.QuoteRecord{}, apperrors.New(apperrors.CodeQuoteFeeInvalid,
			"wholesale fee percent must not be negative")
	}
	if input.BrokerFeeUSD < 0 || input.PolicyFeeUSD < 0 {
		return storage.QuoteRecord{}, apperrors.New(apperrors.CodeQuoteFeeInvalid,
			"broker and policy fees must not be negative")
	}

	submission, err := s.submissions.GetSubmission(ctx, input.SubmissionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.QuoteRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "submission not found", err)
		}
		return storage.QuoteRecord{}, err
	}

	taxPercent, err := s.taxRate(ctx, submission.StateCode)
	if err != nil {
		return storage.QuoteRecord{}, err
	}

	components := Components{
		CarrierQuoteUSD:     input.CarrierQuoteUSD,
		WholesaleFeePercent: input.WholesaleFeePercent,
		BrokerFeeUSD:        input.BrokerFeeUSD,
		PremiumTaxPercent:   taxPercent,
		PolicyFeeUSD:        input.PolicyFeeUSD,
	}
	totals := components.Derive()

	quoteID, err := s.newID()
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	now := s.clock().UTC()
	record := storage.QuoteRecord{
		ID:                    quoteID,
		SubmissionID:          submission.ID,
		CarrierID:             submission.CarrierID,
		CarrierQuoteUSD:       input.CarrierQuoteUSD,
		WholesaleFeePercent:   input.WholesaleFeePercent,
		WholesaleFeeAmountUSD: totals.WholesaleFeeAmountUSD,
		BrokerFeeUSD:          input.BrokerFeeUSD,
		PremiumTaxPercent:     taxPercent,
		PremiumTaxAmountUSD:   totals.PremiumTaxAmountUSD,
		PolicyFeeUSD:          input.PolicyFeeUSD,
		FinalAmountUSD:        totals.FinalAmountUSD,
		Status:                StatusEntered,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.quotes.PutQuote(ctx, record); err != nil {
		return storage.QuoteRecord{}, err
	}
	return record, nil
}

// Get returns one quote after verifying its stored total still derives from
// its components.
func (s *Service) Get(ctx context.Context, quoteID string) (storage.QuoteRecord, error) {
	record, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.QuoteRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "quote not found", err)
		}
		return storage.QuoteRecord{}, err
	}
	if _, err := VerifyStoredTotal(record); err != nil {
		return storage.QuoteRecord{}, err
	}
	return record, nil
}

// ListBySubmission returns the quotes entered for a submission.
func (s *Service) ListBySubmission(ctx context.Context, submissionID string) ([]storage.QuoteRecord, error) {
	return s.quotes.ListQuotesBySubmission(ctx, submissionID)
}

// Post publishes an ENTERED quote to its agency. The transition is guarded
// so concurrent posts cannot both succeed; the agency notification is best
// effort and never rolls back the transition.
func (s *Service) Post(ctx context.Context, quoteID, carrierReference string) (storage.QuoteRecord, error) {
	now := s.clock().UTC()
	if err := s.quotes.MarkQuotePosted(ctx, quoteID, carrierReference, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.QuoteRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "quote not found", err)
		}
		if errors.Is(err, storage.ErrConflict) {
			return storage.QuoteRecord{}, s.transitionError(ctx, quoteID, StatusEntered)
		}
		return storage.QuoteRecord{}, err
	}

	record, err := s.Get(ctx, quoteID)
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	s.notifyAgency(ctx, record, "Quote posted",
		fmt.Sprintf("Quote %s for %s is ready for review.", record.ID, money.FormatUSD(record.FinalAmountUSD)))
	return record, nil
}

// AcceptInput identifies the quote and the accepting actor.
type AcceptInput struct {
	QuoteID       string
	ActorID       string
	ActorAgencyID string
}

// Accept records agency acceptance of a POSTED quote. Only an actor from the
// submission's owning agency may accept. Acceptance is terminal and discards
// the quote's live draft.
func (s *Service) Accept(ctx context.Context, input AcceptInput) (storage.QuoteRecord, error) {
	record, err := s.Get(ctx, input.QuoteID)
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	submission, err := s.submissions.GetSubmission(ctx, record.SubmissionID)
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	if submission.AgencyID != input.ActorAgencyID {
		return storage.QuoteRecord{}, apperrors.WithMetadata(apperrors.CodeQuoteAgencyMismatch,
			"quote belongs to another agency",
			map[string]string{"quote_id": record.ID, "agency_id": submission.AgencyID})
	}

	now := s.clock().UTC()
	if err := s.quotes.MarkQuoteAccepted(ctx, input.QuoteID, input.ActorID, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.QuoteRecord{}, apperrors.Wrap(apperrors.CodeNotFound, "quote not found", err)
		}
		if errors.Is(err, storage.ErrConflict) {
			return storage.QuoteRecord{}, s.transitionError(ctx, input.QuoteID, StatusPosted)
		}
		return storage.QuoteRecord{}, err
	}

	s.deleteDraft(ctx, input.QuoteID, input.ActorAgencyID)
	return s.Get(ctx, input.QuoteID)
}

// AcceptWithGrant validates a link-based accept grant against the quote and
// then runs Accept on behalf of the agency the grant binds.
func (s *Service) AcceptWithGrant(ctx context.Context, quoteID, grant, actorID string, cfg GrantConfig) (storage.QuoteRecord, error) {
	record, err := s.Get(ctx, quoteID)
	if err != nil {
		return storage.QuoteRecord{}, err
	}
	submission, err := s.submissions.GetSubmission(ctx, record.SubmissionID)
	if err != nil {
		return storage.QuoteRecord{}, err
	}

	claims, err := ValidateAcceptGrant(grant, GrantBinding{
		QuoteID:      record.ID,
		SubmissionID: record.SubmissionID,
		AgencyID:     submission.AgencyID,
	}, cfg)
	if err != nil {
		return storage.QuoteRecord{}, err
	}

	return s.Accept(ctx, AcceptInput{
		QuoteID:       record.ID,
		ActorID:       actorID,
		ActorAgencyID: claims.AgencyID,
	})
}

// PlanFinance computes and stores the amortization plan for a quote.
func (s *Service) PlanFinance(ctx context.Context, quoteID string, downPaymentUSD, annualRatePercent float64, tenureMonths int) (storage.FinancePlanRecord, error) {
	record, err := s.Get(ctx, quoteID)
	if err != nil {
		return storage.FinancePlanRecord{}, err
	}
	if err := validateFinanceTerms(record.FinalAmountUSD, downPaymentUSD, tenureMonths); err != nil {
		return storage.FinancePlanRecord{}, err
	}

	principal := record.FinalAmountUSD - downPaymentUSD
	plan := storage.FinancePlanRecord{
		QuoteID:               quoteID,
		DownPaymentUSD:        downPaymentUSD,
		AnnualRatePercent:     annualRatePercent,
		TenureMonths:          tenureMonths,
		MonthlyInstallmentUSD: MonthlyInstallment(principal, annualRatePercent, tenureMonths),
		CreatedAt:             s.clock().UTC(),
	}
	if err := s.finance.PutFinancePlan(ctx, plan); err != nil {
		return storage.FinancePlanRecord{}, err
	}
	return plan, nil
}

// taxRate resolves the premium tax rate for a state, defaulting when the
// state has no configured rate.
func (s *Service) taxRate(ctx context.Context, stateCode string) (float64, error) {
	if s.taxes == nil {
		return defaultTaxRatePercent, nil
	}
	lookupCtx, cancel := context.WithTimeout(ctx, timeouts.TaxLookup)
	defer cancel()
	rate, err := s.taxes.Rate(lookupCtx, stateCode)
	if err != nil {
		if errors.Is(err, ErrUnknownState) {
			s.log.Warn("premium tax rate unknown, applying default",
				zap.String("state_code", stateCode),
				zap.Float64("default_percent", defaultTaxRatePercent))
			return defaultTaxRatePercent, nil
		}
		return 0, apperrors.WrapCollaborator(apperrors.CodeCollaboratorTax, "tax_rates",
			"premium tax lookup failed", err)
	}
	return rate, nil
}

// transitionError reads the quote's current status so the guard message can
// name both sides of the violated transition.
func (s *Service) transitionError(ctx context.Context, quoteID, required string) error {
	current := "UNKNOWN"
	if record, err := s.quotes.GetQuote(ctx, quoteID); err == nil {
		current = record.Status
	}
	return apperrors.WithMetadata(apperrors.CodeQuoteInvalidTransition,
		fmt.Sprintf("quote is %s, transition requires %s", current, required),
		map[string]string{"status": current, "required": required})
}

// notifyAgency sends a best-effort notification to the submission's agency.
func (s *Service) notifyAgency(ctx context.Context, record storage.QuoteRecord, subject, body string) {
	if s.notifier == nil {
		return
	}
	submission, err := s.submissions.GetSubmission(ctx, record.SubmissionID)
	if err != nil {
		s.log.Warn("load submission for agency notification", zap.String("quote_id", record.ID), zap.Error(err))
		return
	}
	agency, err := s.agencies.GetAgency(ctx, submission.AgencyID)
	if err != nil {
		s.log.Warn("load agency for notification", zap.String("agency_id", submission.AgencyID), zap.Error(err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, timeouts.Notify)
	defer cancel()
	result := s.notifier.Send(sendCtx, Message{
		To:      agency.Email,
		Subject: subject,
		Body:    body,
		QuoteID: record.ID,
	})
	if !result.OK {
		s.log.Warn("agency notification failed",
			zap.String("quote_id", record.ID),
			zap.String("detail", result.Err))
	}
}

// deleteDraft discards the live quote entry draft after acceptance.
func (s *Service) deleteDraft(ctx context.Context, quoteID, agencyID string) {
	if s.drafts == nil {
		return
	}
	key := storage.DraftKey{FormType: DraftFormType, FormID: quoteID, OwnerID: agencyID}
	if err := s.drafts.DeleteDraft(ctx, key); err != nil {
		s.log.Warn("delete quote draft", zap.String("quote_id", quoteID), zap.Error(err))
	}
}
