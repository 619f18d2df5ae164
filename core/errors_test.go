package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestProvisionErrorMapper_Sentinels(t *testing.T) {
	cases := []struct {
		err      error
		category goerrors.Category
		textCode string
		code     int
	}{
		{fmt.Errorf("%w: driver fake", ErrCircuitOpen), goerrors.CategoryRateLimit, ProvisionErrorCircuitOpen, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: active -> queued", ErrInvalidResourceStatusTransition), goerrors.CategoryConflict, ProvisionErrorStateConflict, http.StatusConflict},
		{fmt.Errorf("%w: fake", ErrDriverNotRegistered), goerrors.CategoryNotFound, ProvisionErrorDriverNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: webhooks", ErrCapabilityNotSupported), goerrors.CategoryOperation, ProvisionErrorCapabilityUnsupported, http.StatusInternalServerError},
		{fmt.Errorf("%w: vps-small", ErrPlanMapNotFound), goerrors.CategoryNotFound, ProvisionErrorBadInput, http.StatusNotFound},
		{fmt.Errorf("%w: no credential", ErrCredentialUnavailable), goerrors.CategoryOperation, ProvisionErrorCredential, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		mapped := provisionErrorMapper(tc.err)
		if mapped == nil {
			t.Fatalf("%v: expected envelope", tc.err)
		}
		if mapped.Category != tc.category {
			t.Fatalf("%v: expected category %s, got %s", tc.err, tc.category, mapped.Category)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%v: expected text code %s, got %s", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.code {
			t.Fatalf("%v: expected http code %d, got %d", tc.err, tc.code, mapped.Code)
		}
		if !errors.Is(mapped, errors.Unwrap(tc.err)) {
			t.Fatalf("%v: envelope must preserve the sentinel chain", tc.err)
		}
	}
}

func TestProvisionErrorMapper_PreservesExistingEnvelope(t *testing.T) {
	original := goerrors.New("already mapped", goerrors.CategoryConflict).WithTextCode(ProvisionErrorStateConflict)
	mapped := provisionErrorMapper(original)
	if mapped != original {
		t.Fatalf("existing envelope must pass through")
	}
	if mapped.Code != http.StatusConflict {
		t.Fatalf("missing http code must be backfilled, got %d", mapped.Code)
	}
}

func TestProvisionErrorMapper_SignatureFailures(t *testing.T) {
	mapped := provisionErrorMapper(errors.New("core: webhook signature verification failed: hmac mismatch"))
	if mapped.Category != goerrors.CategoryAuth {
		t.Fatalf("expected auth category, got %s", mapped.Category)
	}
	if mapped.TextCode != ProvisionErrorWebhookVerification {
		t.Fatalf("expected verification text code, got %s", mapped.TextCode)
	}
}

func TestProvisionErrorMapper_BadInputHeuristics(t *testing.T) {
	mapped := provisionErrorMapper(errors.New("core: order ref is required"))
	if mapped.Category != goerrors.CategoryBadInput {
		t.Fatalf("expected bad input category, got %s", mapped.Category)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", mapped.Code)
	}
}

func TestProvisionErrorMapper_Nil(t *testing.T) {
	if provisionErrorMapper(nil) != nil {
		t.Fatalf("nil must map to nil")
	}
}
