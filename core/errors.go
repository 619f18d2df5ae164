package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ProvisionErrorBadInput              = "PROVISION_BAD_INPUT"
	ProvisionErrorDriverNotFound        = "PROVISION_DRIVER_NOT_FOUND"
	ProvisionErrorCapabilityUnsupported = "PROVISION_CAPABILITY_UNSUPPORTED"
	ProvisionErrorStateConflict         = "PROVISION_STATE_CONFLICT"
	ProvisionErrorCircuitOpen           = "PROVISION_CIRCUIT_OPEN"
	ProvisionErrorCredential            = "PROVISION_CREDENTIAL_ERROR"
	ProvisionErrorProviderFailed        = "PROVISION_PROVIDER_FAILED"
	ProvisionErrorWebhookVerification   = "PROVISION_WEBHOOK_VERIFICATION_FAILED"
	ProvisionErrorInternal              = "PROVISION_INTERNAL_ERROR"
)

func provisionErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureProvisionErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrCircuitOpen):
		return wrapProvisionError(err, goerrors.CategoryRateLimit, ProvisionErrorCircuitOpen)
	case errors.Is(err, ErrInvalidResourceStatusTransition),
		errors.Is(err, ErrInvalidTaskStatusTransition):
		return wrapProvisionError(err, goerrors.CategoryConflict, ProvisionErrorStateConflict)
	case errors.Is(err, ErrDriverNotRegistered):
		return wrapProvisionError(err, goerrors.CategoryNotFound, ProvisionErrorDriverNotFound)
	case errors.Is(err, ErrCapabilityNotSupported):
		return wrapProvisionError(err, goerrors.CategoryOperation, ProvisionErrorCapabilityUnsupported)
	case errors.Is(err, ErrResourceNotFound),
		errors.Is(err, ErrTaskNotFound),
		errors.Is(err, ErrPlanMapNotFound):
		return wrapProvisionError(err, goerrors.CategoryNotFound, ProvisionErrorBadInput)
	case errors.Is(err, ErrCredentialUnavailable):
		return wrapProvisionError(err, goerrors.CategoryOperation, ProvisionErrorCredential)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"), strings.Contains(msg, "webhook") && strings.Contains(msg, "verif"):
		return newProvisionError(err.Error(), goerrors.CategoryAuth, ProvisionErrorWebhookVerification)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newProvisionError(err.Error(), goerrors.CategoryBadInput, ProvisionErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureProvisionErrorEnvelope(mapped)
}

func newProvisionError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureProvisionErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func wrapProvisionError(source error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureProvisionErrorEnvelope(
		goerrors.Wrap(source, category, source.Error()).
			WithTextCode(textCode),
	)
}

func ensureProvisionErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = provisionHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultProvisionTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultProvisionTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ProvisionErrorBadInput
	case goerrors.CategoryNotFound:
		return ProvisionErrorDriverNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ProvisionErrorWebhookVerification
	case goerrors.CategoryConflict:
		return ProvisionErrorStateConflict
	case goerrors.CategoryRateLimit:
		return ProvisionErrorCircuitOpen
	case goerrors.CategoryOperation:
		return ProvisionErrorProviderFailed
	default:
		return ProvisionErrorInternal
	}
}

func provisionHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
