package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Internal failure taxonomy. Every member except ErrAuditWriteFailed is
// terminal for the current attempt; the caller must restart the flow with a
// freshly minted state.
var (
	ErrMalformedState      = errors.New("core: malformed callback state")
	ErrStateExpired        = errors.New("core: callback state expired")
	ErrStateFromFuture     = errors.New("core: callback state minted in the future")
	ErrUntrustedHost       = errors.New("core: callback host not allowlisted")
	ErrIntegrationNotFound = errors.New("core: integration not found")
	ErrAccessDenied        = errors.New("core: tenant access denied")
	ErrAlreadyConfigured   = errors.New("core: integration already configured")
	ErrProviderUnavailable = errors.New("core: provider unavailable")
	ErrExchangeFailed      = errors.New("core: token exchange failed")
	ErrCommitConflict      = errors.New("core: activation commit conflict")
	ErrAuditWriteFailed    = errors.New("core: audit write failed")
)

// External error codes. The set is fixed and the mapping from internal causes
// is total and stable: distinct internal causes deliberately collapse to one
// code so response content cannot be used as an existence oracle.
const (
	CallbackErrorInvalidState        = "INVALID_STATE"
	CallbackErrorStateExpired        = "STATE_EXPIRED"
	CallbackErrorIntegrationNotFound = "INTEGRATION_NOT_FOUND"
	CallbackErrorAlreadyConfigured   = "ALREADY_CONFIGURED"
	CallbackErrorProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CallbackErrorUntrustedHost       = "UNTRUSTED_HOST"
)

// Text codes for failures that happen before the callback pipeline runs:
// missing wiring and rejected input at the command or query surface.
const (
	ServiceErrorInternal = "INTERNAL_ERROR"
	ServiceErrorBadInput = "BAD_INPUT"
)

// ExternalError is the only error shape that may cross the boundary: an HTTP
// status, a stable code, and a non-technical message. Never internal text,
// identifiers, or field-level detail.
type ExternalError struct {
	Status  int
	Code    string
	Message string
}

// Externalize classifies any internal failure into its external envelope.
// AccessDenied collapses into IntegrationNotFound and CommitConflict into
// AlreadyConfigured; do not improve specificity here.
func Externalize(err error) ExternalError {
	switch {
	case errors.Is(err, ErrStateExpired):
		return ExternalError{
			Status:  http.StatusBadRequest,
			Code:    CallbackErrorStateExpired,
			Message: "This authorization request has expired. Please start again.",
		}
	case errors.Is(err, ErrMalformedState), errors.Is(err, ErrStateFromFuture):
		return ExternalError{
			Status:  http.StatusBadRequest,
			Code:    CallbackErrorInvalidState,
			Message: "This authorization request is not valid. Please start again.",
		}
	case errors.Is(err, ErrUntrustedHost):
		return ExternalError{
			Status:  http.StatusForbidden,
			Code:    CallbackErrorUntrustedHost,
			Message: "This authorization request could not be accepted.",
		}
	case errors.Is(err, ErrIntegrationNotFound), errors.Is(err, ErrAccessDenied):
		return ExternalError{
			Status:  http.StatusNotFound,
			Code:    CallbackErrorIntegrationNotFound,
			Message: "The requested integration could not be found.",
		}
	case errors.Is(err, ErrAlreadyConfigured), errors.Is(err, ErrCommitConflict):
		return ExternalError{
			Status:  http.StatusConflict,
			Code:    CallbackErrorAlreadyConfigured,
			Message: "This integration is already connected.",
		}
	default:
		// ProviderUnavailable, ExchangeFailed and anything unexpected share
		// one envelope: the attempt failed and a fresh flow is required.
		return ExternalError{
			Status:  http.StatusServiceUnavailable,
			Code:    CallbackErrorProviderUnavailable,
			Message: "The provider could not complete the connection. Please try again later.",
		}
	}
}

func callbackErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureCallbackErrorEnvelope(richErr)
	}

	external := Externalize(err)
	category := callbackErrorCategory(err)
	mapped := goerrors.New(err.Error(), category).
		WithCode(external.Status).
		WithTextCode(external.Code)
	return ensureCallbackErrorEnvelope(mapped)
}

func callbackErrorCategory(err error) goerrors.Category {
	switch {
	case errors.Is(err, ErrMalformedState),
		errors.Is(err, ErrStateFromFuture),
		errors.Is(err, ErrStateExpired):
		return goerrors.CategoryBadInput
	case errors.Is(err, ErrUntrustedHost), errors.Is(err, ErrAccessDenied):
		return goerrors.CategoryAuthz
	case errors.Is(err, ErrIntegrationNotFound):
		return goerrors.CategoryNotFound
	case errors.Is(err, ErrAlreadyConfigured), errors.Is(err, ErrCommitConflict):
		return goerrors.CategoryConflict
	case errors.Is(err, ErrProviderUnavailable), errors.Is(err, ErrExchangeFailed):
		return goerrors.CategoryOperation
	default:
		return goerrors.CategoryInternal
	}
}

func ensureCallbackErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = http.StatusServiceUnavailable
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = CallbackErrorProviderUnavailable
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}
