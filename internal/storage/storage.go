// Package storage defines the persistence boundary for brokerage records.
//
// Interfaces here are consumed by the lifecycle services and implemented by
// the sqlite subpackage. Guarded mutations (status transitions, document
// appends) report ErrConflict when their precondition no longer holds so
// callers can map the conflict to the appropriate domain error.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a guarded write lost its precondition.
var ErrConflict = errors.New("record conflict")

// GeneratedDocument is one generated-document reference embedded in a
// submission. At most one record per document type exists per submission.
type GeneratedDocument struct {
	DocumentType    string
	Name            string
	URL             string
	GeneratedAt     time.Time
	SignatureStatus string
}

// SubmissionRecord stores one client insurance application.
type SubmissionRecord struct {
	ID           string
	AgencyID     string
	ContactName  string
	ContactEmail string
	ContactPhone string
	AddressLine1 string
	AddressLine2 string
	City         string
	StateCode    string
	PostalCode   string
	// PayloadJSON holds the original form data as a tagged-value bag.
	PayloadJSON      string
	FileRefs         []string
	CarrierID        string
	TemplateID       string
	Status           string
	AdminNotes       string
	SignedDocuments  []GeneratedDocument
	PaymentCompleted bool
	ESignCompleted   bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SubmissionPage is a paged set of submissions.
type SubmissionPage struct {
	Submissions   []SubmissionRecord
	NextPageToken string
}

// ListSubmissionsInput configures submission listing.
type ListSubmissionsInput struct {
	PageSize  int
	PageToken string
	// Filter is an AIP-160 expression over status, agency_id, carrier_id
	// and state.
	Filter string
}

// QuoteRecord stores carrier-priced terms for one submission.
type QuoteRecord struct {
	ID                    string
	SubmissionID          string
	CarrierID             string
	CarrierQuoteUSD       float64
	WholesaleFeePercent   float64
	WholesaleFeeAmountUSD float64
	BrokerFeeUSD          float64
	PremiumTaxPercent     float64
	PremiumTaxAmountUSD   float64
	PolicyFeeUSD          float64
	FinalAmountUSD        float64
	CarrierReference      string
	Status                string
	PostedAt              *time.Time
	AcceptedAt            *time.Time
	AcceptedByUserID      string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// RoutingLogRecord is the immutable record of one routing attempt.
type RoutingLogRecord struct {
	ID           string
	SubmissionID string
	CarrierID    string
	Attempt      int
	Outcome      string
	ErrorDetail  string
	CreatedAt    time.Time
}

// DraftKey is the composite key for auto-saved form state.
type DraftKey struct {
	FormType string
	FormID   string
	OwnerID  string
}

// DraftRecord stores one live draft. At most one record exists per key.
type DraftRecord struct {
	Key         DraftKey
	PayloadJSON string
	LastSaved   time.Time
}

// CarrierRecord stores one carrier directory entry.
type CarrierRecord struct {
	ID    string
	Name  string
	Email string
	// StateCodes is the carrier's service area.
	StateCodes []string
	// IndustryCodes limits the industries the carrier serves; empty means
	// the carrier serves all industries.
	IndustryCodes []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TemplateRecord stores one intake template. Its industry code feeds
// carrier eligibility.
type TemplateRecord struct {
	ID           string
	Name         string
	IndustryCode string
}

// AgencyRecord stores one retail agency.
type AgencyRecord struct {
	ID    string
	Name  string
	Email string
}

// FinancePlanRecord stores the amortization terms attached to a quote.
type FinancePlanRecord struct {
	QuoteID               string
	DownPaymentUSD        float64
	AnnualRatePercent     float64
	TenureMonths          int
	MonthlyInstallmentUSD float64
	CreatedAt             time.Time
}

// SubmissionStore is the persistence boundary for submissions.
type SubmissionStore interface {
	PutSubmission(ctx context.Context, record SubmissionRecord) error
	GetSubmission(ctx context.Context, submissionID string) (SubmissionRecord, error)
	ListSubmissions(ctx context.Context, input ListSubmissionsInput) (SubmissionPage, error)
	// UpdateSubmissionStatus advances status only when the current status
	// matches fromStatus; ErrConflict otherwise.
	UpdateSubmissionStatus(ctx context.Context, submissionID, fromStatus, toStatus string, updatedAt time.Time) error
	// UpdateSubmissionContent overwrites client-editable fields only while
	// the current status is one of allowedStatuses and no routing log
	// entries exist for the submission; ErrConflict otherwise.
	UpdateSubmissionContent(ctx context.Context, record SubmissionRecord, allowedStatuses ...string) error
	SetSubmissionAdminNotes(ctx context.Context, submissionID, notes string, updatedAt time.Time) error
	// AppendSubmissionDocument appends a generated document reference if no
	// document of the same type exists yet; ErrConflict otherwise.
	AppendSubmissionDocument(ctx context.Context, submissionID string, document GeneratedDocument) error
}

// QuoteStore is the persistence boundary for quotes.
type QuoteStore interface {
	PutQuote(ctx context.Context, record QuoteRecord) error
	GetQuote(ctx context.Context, quoteID string) (QuoteRecord, error)
	ListQuotesBySubmission(ctx context.Context, submissionID string) ([]QuoteRecord, error)
	// MarkQuotePosted transitions ENTERED to POSTED; ErrConflict when the
	// quote is in any other status.
	MarkQuotePosted(ctx context.Context, quoteID, carrierReference string, postedAt time.Time) error
	// MarkQuoteAccepted transitions POSTED to ACCEPTED_BY_AGENCY;
	// ErrConflict when the quote is in any other status.
	MarkQuoteAccepted(ctx context.Context, quoteID, acceptedByUserID string, acceptedAt time.Time) error
}

// RoutingLogStore is the persistence boundary for routing attempts.
type RoutingLogStore interface {
	ListRoutingLog(ctx context.Context, submissionID string) ([]RoutingLogRecord, error)
	// RecordRoutingOutcome appends one routing log entry and advances the
	// submission from SUBMITTED to ROUTED in a single transaction. The
	// status advance is skipped silently when the submission is already
	// ROUTED or beyond.
	RecordRoutingOutcome(ctx context.Context, entry RoutingLogRecord) error
}

// DraftStore is the persistence boundary for auto-saved form drafts.
type DraftStore interface {
	// UpsertDraft overwrites the payload and refreshes lastSaved for the key.
	UpsertDraft(ctx context.Context, record DraftRecord) error
	GetDraft(ctx context.Context, key DraftKey) (DraftRecord, error)
	// DeleteDraft is idempotent; deleting an absent draft succeeds.
	DeleteDraft(ctx context.Context, key DraftKey) error
}

// CarrierStore is the persistence boundary for the carrier directory.
type CarrierStore interface {
	PutCarrier(ctx context.Context, record CarrierRecord) error
	GetCarrier(ctx context.Context, carrierID string) (CarrierRecord, error)
	ListCarriers(ctx context.Context) ([]CarrierRecord, error)
}

// TemplateStore is the persistence boundary for intake templates.
type TemplateStore interface {
	PutTemplate(ctx context.Context, record TemplateRecord) error
	GetTemplate(ctx context.Context, templateID string) (TemplateRecord, error)
}

// AgencyStore is the persistence boundary for retail agencies.
type AgencyStore interface {
	PutAgency(ctx context.Context, record AgencyRecord) error
	GetAgency(ctx context.Context, agencyID string) (AgencyRecord, error)
}

// FinancePlanStore is the persistence boundary for finance plans.
type FinancePlanStore interface {
	PutFinancePlan(ctx context.Context, record FinancePlanRecord) error
	GetFinancePlan(ctx context.Context, quoteID string) (FinancePlanRecord, error)
}
