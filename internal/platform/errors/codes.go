// Package errors provides structured error handling for brokerage workflows.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Submission errors
	CodeSubmissionContactMissing    Code = "SUBMISSION_CONTACT_MISSING"
	CodeSubmissionTemplateMissing   Code = "SUBMISSION_TEMPLATE_MISSING"
	CodeSubmissionStateCodeMissing  Code = "SUBMISSION_STATE_CODE_MISSING"
	CodeSubmissionImmutable         Code = "SUBMISSION_IMMUTABLE"
	CodeSubmissionInvalidTransition Code = "SUBMISSION_INVALID_TRANSITION"

	// Quote errors
	CodeQuoteInvalidTransition Code = "QUOTE_INVALID_TRANSITION"
	CodeQuoteAgencyMismatch    Code = "QUOTE_AGENCY_MISMATCH"
	CodeQuotePremiumMissing    Code = "QUOTE_PREMIUM_MISSING"
	CodeQuoteFeeInvalid        Code = "QUOTE_FEE_INVALID"
	CodeQuoteTotalDrift        Code = "QUOTE_TOTAL_DRIFT"

	// Accept grant errors
	CodeAcceptGrantInvalid  Code = "ACCEPT_GRANT_INVALID"
	CodeAcceptGrantExpired  Code = "ACCEPT_GRANT_EXPIRED"
	CodeAcceptGrantMismatch Code = "ACCEPT_GRANT_MISMATCH"

	// Finance plan errors
	CodeFinanceTenureOutOfRange   Code = "FINANCE_TENURE_OUT_OF_RANGE"
	CodeFinanceDownPaymentInvalid Code = "FINANCE_DOWN_PAYMENT_INVALID"
	CodeFinancePlanMissing        Code = "FINANCE_PLAN_MISSING"

	// Document errors
	CodeDocumentTypeInvalid Code = "DOCUMENT_TYPE_INVALID"

	// Draft errors
	CodeDraftKeyInvalid Code = "DRAFT_KEY_INVALID"

	// Routing errors
	CodeRoutingCarrierMissing Code = "ROUTING_CARRIER_MISSING"

	// Collaborator errors
	CodeCollaboratorRender  Code = "COLLABORATOR_RENDER_FAILED"
	CodeCollaboratorStorage Code = "COLLABORATOR_STORAGE_FAILED"
	CodeCollaboratorNotify  Code = "COLLABORATOR_NOTIFY_FAILED"
	CodeCollaboratorTax     Code = "COLLABORATOR_TAX_LOOKUP_FAILED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// Kind groups codes into the coarse failure classes surfaced to callers.
type Kind string

const (
	// KindValidation marks malformed or missing caller input.
	KindValidation Kind = "VALIDATION"
	// KindInvalidTransition marks a state machine guard violation.
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	// KindForbidden marks a cross-tenant access attempt.
	KindForbidden Kind = "FORBIDDEN"
	// KindImmutableState marks mutation attempted after lock-in.
	KindImmutableState Kind = "IMMUTABLE_STATE"
	// KindPrecondition marks a missing dependent resource.
	KindPrecondition Kind = "PRECONDITION"
	// KindDomain marks a business-rule violation.
	KindDomain Kind = "DOMAIN"
	// KindNotFound marks a missing record.
	KindNotFound Kind = "NOT_FOUND"
	// KindCollaborator marks a renderer/storage/notification failure.
	KindCollaborator Kind = "COLLABORATOR"
	// KindUnknown marks unclassified failures.
	KindUnknown Kind = "UNKNOWN"
)

// Kind classifies the code into its failure class.
func (c Code) Kind() Kind {
	switch c {
	case CodeSubmissionContactMissing,
		CodeSubmissionTemplateMissing,
		CodeSubmissionStateCodeMissing,
		CodeQuotePremiumMissing,
		CodeQuoteFeeInvalid,
		CodeDocumentTypeInvalid,
		CodeDraftKeyInvalid,
		CodeRoutingCarrierMissing,
		CodeAcceptGrantInvalid:
		return KindValidation

	case CodeSubmissionInvalidTransition,
		CodeQuoteInvalidTransition:
		return KindInvalidTransition

	case CodeQuoteAgencyMismatch,
		CodeAcceptGrantMismatch:
		return KindForbidden

	case CodeSubmissionImmutable:
		return KindImmutableState

	case CodeFinancePlanMissing,
		CodeAcceptGrantExpired:
		return KindPrecondition

	case CodeFinanceTenureOutOfRange,
		CodeFinanceDownPaymentInvalid,
		CodeQuoteTotalDrift:
		return KindDomain

	case CodeNotFound:
		return KindNotFound

	case CodeCollaboratorRender,
		CodeCollaboratorStorage,
		CodeCollaboratorNotify,
		CodeCollaboratorTax:
		return KindCollaborator

	default:
		return KindUnknown
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c.Kind() {
	case KindValidation, KindDomain:
		return codes.InvalidArgument
	case KindInvalidTransition, KindImmutableState, KindPrecondition:
		return codes.FailedPrecondition
	case KindForbidden:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindCollaborator:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
