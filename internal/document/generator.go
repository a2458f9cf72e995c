// Package document renders and stores the legal/financial documents that
// accompany a quoted submission.
package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EagleChen/mapmutex"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/platform/logging"
	"github.com/brokerwell/brokerwell/internal/platform/money"
	"github.com/brokerwell/brokerwell/internal/platform/timeouts"
	"github.com/brokerwell/brokerwell/internal/storage"
)

var tracer = otel.Tracer("github.com/brokerwell/brokerwell/internal/document")

// Document types.
const (
	TypeProposal         = "PROPOSAL"
	TypeCarrierForm      = "CARRIER_FORM"
	TypeFinanceAgreement = "FINANCE_AGREEMENT"
)

// AllTypes lists every document type in generation order.
var AllTypes = []string{TypeProposal, TypeCarrierForm, TypeFinanceAgreement}

// SignatureStatusUnsigned is the initial signature state of a generated
// document.
const SignatureStatusUnsigned = "UNSIGNED"

// Context is the assembled input handed to the renderer. Currency amounts
// are pre-formatted for display.
type Context struct {
	DocumentType     string
	SubmissionID     string
	QuoteID          string
	ContactName      string
	BusinessAddress  string
	AgencyName       string
	CarrierName      string
	CarrierQuote     string
	WholesaleFee     string
	BrokerFee        string
	PremiumTax       string
	PolicyFee        string
	FinalAmount      string
	DownPayment      string
	MonthlyPayment   string
	TenureMonths     int
	CarrierReference string
}

// Renderer converts a render context into a document binary.
type Renderer interface {
	Render(ctx context.Context, input Context) ([]byte, error)
}

// BlobStore persists a rendered binary and returns its public URL.
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// Message is one outbound client email carrying a document link.
type Message struct {
	To          string
	Subject     string
	Body        string
	DocumentURL string
}

// Result reports a mail attempt; failure is a value.
type Result struct {
	OK  bool
	Err string
}

// Mailer delivers client emails.
type Mailer interface {
	Send(ctx context.Context, msg Message) Result
}

// Generator runs the document pipeline.
type Generator struct {
	submissions storage.SubmissionStore
	quotes      storage.QuoteStore
	agencies    storage.AgencyStore
	carriers    storage.CarrierStore
	finance     storage.FinancePlanStore
	renderer    Renderer
	blobs       BlobStore
	mailer      Mailer
	locks       *mapmutex.Mutex
	clock       func() time.Time
	log         *zap.Logger
}

// NewGenerator creates a Generator. The mailer is optional.
func NewGenerator(
	submissions storage.SubmissionStore,
	quotes storage.QuoteStore,
	agencies storage.AgencyStore,
	carriers storage.CarrierStore,
	finance storage.FinancePlanStore,
	renderer Renderer,
	blobs BlobStore,
	mailer Mailer,
) *Generator {
	return &Generator{
		submissions: submissions,
		quotes:      quotes,
		agencies:    agencies,
		carriers:    carriers,
		finance:     finance,
		renderer:    renderer,
		blobs:       blobs,
		mailer:      mailer,
		locks:       mapmutex.NewCustomizedMapMutex(800, 100000000, 10, 1.1, 0.2),
		clock:       time.Now,
		log:         logging.For("document"),
	}
}

// Generate produces one document for a quote's submission. Generation is
// idempotent per type: an existing record is returned without re-rendering.
// The existence check and the append are serialized per (submission, type)
// so concurrent calls cannot double-generate, while different types proceed
// in parallel.
func (g *Generator) Generate(ctx context.Context, quoteID, documentType string) (storage.GeneratedDocument, error) {
	ctx, span := tracer.Start(ctx, "document.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.id", quoteID),
		attribute.String("document.type", documentType),
	)

	if !validType(documentType) {
		return storage.GeneratedDocument{}, apperrors.WithMetadata(apperrors.CodeDocumentTypeInvalid,
			"unknown document type", map[string]string{"document_type": documentType})
	}

	quote, err := g.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.GeneratedDocument{}, apperrors.Wrap(apperrors.CodeNotFound, "quote not found", err)
		}
		return storage.GeneratedDocument{}, err
	}
	lockKey := quote.SubmissionID + "/" + documentType
	if !g.locks.TryLock(lockKey) {
		return storage.GeneratedDocument{}, apperrors.WithMetadata(apperrors.CodeCollaboratorStorage,
			"document generation contended past retry budget",
			map[string]string{"submission_id": quote.SubmissionID, "document_type": documentType})
	}
	defer g.locks.Unlock(lockKey)

	// Loaded under the lock so the existence check cannot see a stale
	// document list.
	submission, err := g.submissions.GetSubmission(ctx, quote.SubmissionID)
	if err != nil {
		return storage.GeneratedDocument{}, err
	}
	if existing, ok := findDocument(submission, documentType); ok {
		return existing, nil
	}

	renderInput, err := g.assembleContext(ctx, submission, quote, documentType)
	if err != nil {
		return storage.GeneratedDocument{}, err
	}

	data, err := g.render(ctx, renderInput)
	if err != nil {
		return storage.GeneratedDocument{}, err
	}

	name := fmt.Sprintf("%s-%s.pdf", strings.ToLower(documentType), submission.ID)
	url, err := g.store(ctx, name, data)
	if err != nil {
		return storage.GeneratedDocument{}, err
	}

	record := storage.GeneratedDocument{
		DocumentType:    documentType,
		Name:            name,
		URL:             url,
		GeneratedAt:     g.clock().UTC(),
		SignatureStatus: SignatureStatusUnsigned,
	}
	if err := g.submissions.AppendSubmissionDocument(ctx, submission.ID, record); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another generation appended first; its record wins.
			current, getErr := g.submissions.GetSubmission(ctx, submission.ID)
			if getErr != nil {
				return storage.GeneratedDocument{}, getErr
			}
			if existing, ok := findDocument(current, documentType); ok {
				return existing, nil
			}
		}
		return storage.GeneratedDocument{}, err
	}

	g.mailDocument(ctx, submission, record)
	return record, nil
}

// GenerateAll produces every document type for a quote concurrently. All
// types are attempted; the returned error joins the per-type failures.
func (g *Generator) GenerateAll(ctx context.Context, quoteID string) (map[string]storage.GeneratedDocument, error) {
	results := make([]storage.GeneratedDocument, len(AllTypes))
	failures := make([]error, len(AllTypes))

	var group errgroup.Group
	for i, documentType := range AllTypes {
		group.Go(func() error {
			record, err := g.Generate(ctx, quoteID, documentType)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", documentType, err)
				return nil
			}
			results[i] = record
			return nil
		})
	}
	_ = group.Wait()

	generated := make(map[string]storage.GeneratedDocument)
	for i, documentType := range AllTypes {
		if failures[i] == nil {
			generated[documentType] = results[i]
		}
	}
	return generated, errors.Join(failures...)
}

// assembleContext gathers the render inputs from the submission, quote,
// agency, carrier, and (for finance agreements) the finance plan.
func (g *Generator) assembleContext(ctx context.Context, submission storage.SubmissionRecord, quote storage.QuoteRecord, documentType string) (Context, error) {
	input := Context{
		DocumentType:     documentType,
		SubmissionID:     submission.ID,
		QuoteID:          quote.ID,
		ContactName:      submission.ContactName,
		BusinessAddress:  formatAddress(submission),
		CarrierQuote:     money.FormatUSD(quote.CarrierQuoteUSD),
		WholesaleFee:     money.FormatUSD(quote.WholesaleFeeAmountUSD),
		BrokerFee:        money.FormatUSD(quote.BrokerFeeUSD),
		PremiumTax:       money.FormatUSD(quote.PremiumTaxAmountUSD),
		PolicyFee:        money.FormatUSD(quote.PolicyFeeUSD),
		FinalAmount:      money.FormatUSD(quote.FinalAmountUSD),
		CarrierReference: quote.CarrierReference,
	}

	if agency, err := g.agencies.GetAgency(ctx, submission.AgencyID); err == nil {
		input.AgencyName = agency.Name
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Context{}, err
	}
	if carrier, err := g.carriers.GetCarrier(ctx, quote.CarrierID); err == nil {
		input.CarrierName = carrier.Name
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Context{}, err
	}

	if documentType == TypeFinanceAgreement {
		plan, err := g.finance.GetFinancePlan(ctx, quote.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return Context{}, apperrors.WithMetadata(apperrors.CodeFinancePlanMissing,
					"finance agreement requires a finance plan",
					map[string]string{"quote_id": quote.ID})
			}
			return Context{}, err
		}
		input.DownPayment = money.FormatUSD(plan.DownPaymentUSD)
		input.MonthlyPayment = money.FormatUSD(plan.MonthlyInstallmentUSD)
		input.TenureMonths = plan.TenureMonths
	}

	return input, nil
}

func (g *Generator) render(ctx context.Context, input Context) ([]byte, error) {
	renderCtx, cancel := context.WithTimeout(ctx, timeouts.Render)
	defer cancel()
	data, err := g.renderer.Render(renderCtx, input)
	if err != nil {
		return nil, apperrors.WrapCollaborator(apperrors.CodeCollaboratorRender, "renderer",
			"render document", err)
	}
	return data, nil
}

func (g *Generator) store(ctx context.Context, name string, data []byte) (string, error) {
	storeCtx, cancel := context.WithTimeout(ctx, timeouts.BlobStore)
	defer cancel()
	url, err := g.blobs.Store(storeCtx, name, data)
	if err != nil {
		return "", apperrors.WrapCollaborator(apperrors.CodeCollaboratorStorage, "blob_store",
			"store document", err)
	}
	return url, nil
}

// mailDocument sends the stored document link to the client, best effort.
func (g *Generator) mailDocument(ctx context.Context, submission storage.SubmissionRecord, record storage.GeneratedDocument) {
	if g.mailer == nil || submission.ContactEmail == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.Notify)
	defer cancel()
	result := g.mailer.Send(sendCtx, Message{
		To:          submission.ContactEmail,
		Subject:     fmt.Sprintf("Your %s is ready", strings.ReplaceAll(strings.ToLower(record.DocumentType), "_", " ")),
		Body:        fmt.Sprintf("The document %s is available at %s.", record.Name, record.URL),
		DocumentURL: record.URL,
	})
	if !result.OK {
		g.log.Warn("document email failed",
			zap.String("submission_id", submission.ID),
			zap.String("document_type", record.DocumentType),
			zap.String("detail", result.Err))
	}
}

func findDocument(submission storage.SubmissionRecord, documentType string) (storage.GeneratedDocument, bool) {
	for _, document := range submission.SignedDocuments {
		if document.DocumentType == documentType {
			return document, true
		}
	}
	return storage.GeneratedDocument{}, false
}

func validType(documentType string) bool {
	for _, candidate := range AllTypes {
		if candidate == documentType {
			return true
		}
	}
	return false
}

func formatAddress(submission storage.SubmissionRecord) string {
	parts := []string{submission.AddressLine1}
	if submission.AddressLine2 != "" {
		parts = append(parts, submission.AddressLine2)
	}
	parts = append(parts, fmt.Sprintf("%s, %s %s", submission.City, submission.StateCode, submission.PostalCode))
	return strings.Join(parts, ", ")
}
