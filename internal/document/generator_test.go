package document

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/brokerwell/brokerwell/internal/platform/errors"
	"github.com/brokerwell/brokerwell/internal/storage"
	"github.com/brokerwell/brokerwell/internal/storage/sqlite"
)

type stubRenderer struct {
	calls atomic.Int64
	err   error
}

func (r *stubRenderer) Render(_ context.Context, input Context) ([]byte, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("pdf:" + input.DocumentType), nil
}

type stubBlobStore struct {
	calls atomic.Int64
	err   error
}

func (b *stubBlobStore) Store(_ context.Context, name string, _ []byte) (string, error) {
	b.calls.Add(1)
	if b.err != nil {
		return "", b.err
	}
	return "https://files.example.com/" + name, nil
}

type stubMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *stubMailer) Send(_ context.Context, msg Message) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return Result{OK: true}
}

func (m *stubMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type generatorFixture struct {
	generator *Generator
	store     *sqlite.Store
	renderer  *stubRenderer
	blobs     *stubBlobStore
	mailer    *stubMailer
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "brokerwell.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	if err := store.PutAgency(ctx, storage.AgencyRecord{
		ID: "agency-1", Name: "Hilltop Insurance Group", Email: "desk@hilltop.example",
	}); err != nil {
		t.Fatalf("seed agency: %v", err)
	}
	if err := store.PutCarrier(ctx, storage.CarrierRecord{
		ID: "carrier-1", Name: "Summit Mutual", Email: "submissions@summitmutual.example",
		CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed carrier: %v", err)
	}
	if err := store.PutSubmission(ctx, storage.SubmissionRecord{
		ID:           "sub-1",
		AgencyID:     "agency-1",
		ContactName:  "Dana Wheeler",
		ContactEmail: "dana@example.com",
		AddressLine1: "12 Harbor St",
		City:         "Portland",
		StateCode:    "OR",
		PostalCode:   "97201",
		CarrierID:    "carrier-1",
		Status:       "ENTERED",
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	if err := store.PutQuote(ctx, storage.QuoteRecord{
		ID:                    "quote-1",
		SubmissionID:          "sub-1",
		CarrierID:             "carrier-1",
		CarrierQuoteUSD:       5000,
		WholesaleFeePercent:   10,
		WholesaleFeeAmountUSD: 500,
		BrokerFeeUSD:          150,
		PremiumTaxPercent:     2,
		PremiumTaxAmountUSD:   100,
		PolicyFeeUSD:          50,
		FinalAmountUSD:        5800,
		Status:                "POSTED",
		CreatedAt:             now,
		UpdatedAt:             now,
	}); err != nil {
		t.Fatalf("seed quote: %v", err)
	}

	renderer := &stubRenderer{}
	blobs := &stubBlobStore{}
	mailer := &stubMailer{}
	generator := NewGenerator(store, store, store, store, store, renderer, blobs, mailer)
	generator.clock = func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	}
	return &generatorFixture{generator: generator, store: store, renderer: renderer, blobs: blobs, mailer: mailer}
}

func (f *generatorFixture) seedFinancePlan(t *testing.T) {
	t.Helper()
	if err := f.store.PutFinancePlan(context.Background(), storage.FinancePlanRecord{
		QuoteID:               "quote-1",
		DownPaymentUSD:        800,
		AnnualRatePercent:     12,
		TenureMonths:          12,
		MonthlyInstallmentUSD: 444.24,
		CreatedAt:             time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("seed finance plan: %v", err)
	}
}

func TestGenerateProposal(t *testing.T) {
	f := newGeneratorFixture(t)

	record, err := f.generator.Generate(context.Background(), "quote-1", TypeProposal)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if record.DocumentType != TypeProposal {
		t.Fatalf("expected PROPOSAL, got %q", record.DocumentType)
	}
	if record.Name != "proposal-sub-1.pdf" {
		t.Fatalf("unexpected name %q", record.Name)
	}
	if record.URL != "https://files.example.com/proposal-sub-1.pdf" {
		t.Fatalf("unexpected url %q", record.URL)
	}
	if record.SignatureStatus != SignatureStatusUnsigned {
		t.Fatalf("expected UNSIGNED, got %q", record.SignatureStatus)
	}

	submission, err := f.store.GetSubmission(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if len(submission.SignedDocuments) != 1 {
		t.Fatalf("expected one appended document, got %d", len(submission.SignedDocuments))
	}
	if f.mailer.count() != 1 {
		t.Fatalf("expected client email, got %d", f.mailer.count())
	}
}

func TestGenerateIsIdempotentPerType(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()

	first, err := f.generator.Generate(ctx, "quote-1", TypeProposal)
	if err != nil {
		t.Fatalf("first generate: %v", err)
	}
	second, err := f.generator.Generate(ctx, "quote-1", TypeProposal)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if second.URL != first.URL || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("expected existing record returned, got %+v", second)
	}
	if f.renderer.calls.Load() != 1 {
		t.Fatalf("expected single render, got %d", f.renderer.calls.Load())
	}
}

func TestGenerateConcurrentSameTypeRendersOnce(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < len(errs); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.generator.Generate(ctx, "quote-1", TypeProposal)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}
	}
	if f.renderer.calls.Load() != 1 {
		t.Fatalf("expected single render under contention, got %d", f.renderer.calls.Load())
	}

	submission, err := f.store.GetSubmission(ctx, "sub-1")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if len(submission.SignedDocuments) != 1 {
		t.Fatalf("expected one document, got %d", len(submission.SignedDocuments))
	}
}

func TestGenerateRejectsUnknownType(t *testing.T) {
	f := newGeneratorFixture(t)

	_, err := f.generator.Generate(context.Background(), "quote-1", "NAPKIN_SKETCH")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeDocumentTypeInvalid {
		t.Fatalf("expected invalid type, got %v", err)
	}
}

func TestGenerateFinanceAgreementRequiresPlan(t *testing.T) {
	f := newGeneratorFixture(t)
	ctx := context.Background()

	_, err := f.generator.Generate(ctx, "quote-1", TypeFinanceAgreement)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeFinancePlanMissing {
		t.Fatalf("expected plan missing, got %v", err)
	}
	if appErr.Kind() != apperrors.KindPrecondition {
		t.Fatalf("expected precondition kind, got %s", appErr.Kind())
	}
	if f.renderer.calls.Load() != 0 {
		t.Fatalf("expected no render without plan, got %d", f.renderer.calls.Load())
	}

	f.seedFinancePlan(t)
	record, err := f.generator.Generate(ctx, "quote-1", TypeFinanceAgreement)
	if err != nil {
		t.Fatalf("generate with plan: %v", err)
	}
	if record.DocumentType != TypeFinanceAgreement {
		t.Fatalf("expected FINANCE_AGREEMENT, got %q", record.DocumentType)
	}
}

func TestGenerateRendererFailure(t *testing.T) {
	f := newGeneratorFixture(t)
	f.renderer.err = fmt.Errorf("chromium crashed")

	_, err := f.generator.Generate(context.Background(), "quote-1", TypeProposal)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeCollaboratorRender {
		t.Fatalf("expected render failure, got %v", err)
	}
	if appErr.Metadata[apperrors.MetadataCollaborator] != "renderer" {
		t.Fatalf("expected collaborator named, got %v", appErr.Metadata)
	}

	// No partial write.
	submission, getErr := f.store.GetSubmission(context.Background(), "sub-1")
	if getErr != nil {
		t.Fatalf("get submission: %v", getErr)
	}
	if len(submission.SignedDocuments) != 0 {
		t.Fatalf("expected no documents after failure, got %d", len(submission.SignedDocuments))
	}
}

func TestGenerateBlobStoreFailure(t *testing.T) {
	f := newGeneratorFixture(t)
	f.blobs.err = fmt.Errorf("bucket unavailable")

	_, err := f.generator.Generate(context.Background(), "quote-1", TypeProposal)
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeCollaboratorStorage {
		t.Fatalf("expected storage failure, got %v", err)
	}

	submission, getErr := f.store.GetSubmission(context.Background(), "sub-1")
	if getErr != nil {
		t.Fatalf("get submission: %v", getErr)
	}
	if len(submission.SignedDocuments) != 0 {
		t.Fatalf("expected no documents after failure, got %d", len(submission.SignedDocuments))
	}
}

func TestGenerateAll(t *testing.T) {
	f := newGeneratorFixture(t)
	f.seedFinancePlan(t)

	generated, err := f.generator.GenerateAll(context.Background(), "quote-1")
	if err != nil {
		t.Fatalf("generate all: %v", err)
	}
	if len(generated) != 3 {
		t.Fatalf("expected all three documents, got %d", len(generated))
	}
	for _, documentType := range AllTypes {
		if _, ok := generated[documentType]; !ok {
			t.Fatalf("missing %s in %v", documentType, generated)
		}
	}
}

func TestGenerateAllCollectsPerTypeFailures(t *testing.T) {
	f := newGeneratorFixture(t)
	// No finance plan: the finance agreement fails, the other two succeed.

	generated, err := f.generator.GenerateAll(context.Background(), "quote-1")
	if err == nil {
		t.Fatal("expected finance agreement failure surfaced")
	}
	if !errors.Is(err, apperrors.New(apperrors.CodeFinancePlanMissing, "")) {
		t.Fatalf("expected plan missing in joined error, got %v", err)
	}
	if len(generated) != 2 {
		t.Fatalf("expected two successful documents, got %d", len(generated))
	}
	if _, ok := generated[TypeFinanceAgreement]; ok {
		t.Fatal("finance agreement should not have been generated")
	}
}
