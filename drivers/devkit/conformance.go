package devkit

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/inbound"
)

// ValidateDriverConformance runs one provision/poll cycle against a driver and
// checks the base contract: a stable id, a kind, advertised capabilities that
// include provisioning, and a poll result in a known state.
func ValidateDriverConformance(ctx context.Context, driver core.Driver) error {
	if driver == nil {
		return fmt.Errorf("devkit: driver is required")
	}
	if strings.TrimSpace(driver.ID()) == "" {
		return fmt.Errorf("devkit: driver id is required")
	}
	if strings.TrimSpace(string(driver.Kind())) == "" {
		return fmt.Errorf("devkit: driver kind is required")
	}

	provisions := false
	for _, capability := range driver.Capabilities() {
		if capability.Name == core.CapabilityProvision {
			provisions = true
			break
		}
	}
	if !provisions {
		return fmt.Errorf("devkit: driver must advertise the provision capability")
	}

	providerTaskID, err := driver.Provision(ctx, core.ProvisionCall{
		Resource: core.Resource{
			OrderRef: "devkit-conformance",
			DriverID: driver.ID(),
		},
		Spec:           core.ResourceSpec{OrderRef: "devkit-conformance"},
		IdempotencyKey: "devkit-conformance:attempt_1",
	})
	if err != nil {
		return fmt.Errorf("devkit: conformance provision call: %w", err)
	}
	if strings.TrimSpace(providerTaskID) == "" {
		return fmt.Errorf("devkit: provision must return a provider task id")
	}

	result, err := driver.Poll(ctx, providerTaskID)
	if err != nil {
		return fmt.Errorf("devkit: conformance poll call: %w", err)
	}
	switch result.State {
	case core.PollStatePending, core.PollStateCompleted, core.PollStateFailed:
		return nil
	default:
		return fmt.Errorf("devkit: poll returned unknown state %q", result.State)
	}
}

// ValidateClaimStoreConformance checks the claim/dedupe/complete cycle an
// inbound claim store must honor.
func ValidateClaimStoreConformance(ctx context.Context, store inbound.ClaimStore, key string) error {
	if store == nil {
		return fmt.Errorf("devkit: claim store is required")
	}
	claimID, accepted, err := store.Claim(ctx, key, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || strings.TrimSpace(claimID) == "" {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: second claim should not be accepted while a lease is active")
	}
	return store.Complete(ctx, claimID)
}

// ValidateSecretProviderConformance checks that a secret provider round-trips
// a payload and never returns the plaintext as ciphertext.
func ValidateSecretProviderConformance(ctx context.Context, provider core.SecretProvider) error {
	if provider == nil {
		return fmt.Errorf("devkit: secret provider is required")
	}
	plaintext := []byte("devkit-secret-probe")

	ciphertext, err := provider.Encrypt(ctx, plaintext)
	if err != nil {
		return fmt.Errorf("devkit: conformance encrypt: %w", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		return fmt.Errorf("devkit: ciphertext must differ from plaintext")
	}

	decrypted, err := provider.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("devkit: conformance decrypt: %w", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		return fmt.Errorf("devkit: decrypt did not round-trip the payload")
	}
	return nil
}
