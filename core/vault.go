package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrCredentialUnavailable = errors.New("core: credential unavailable")

// CredentialVault stores provider secrets encrypted and reveals them only at
// point of use. Reveal output must not outlive the driver call it was
// resolved for.
type CredentialVault struct {
	store  CredentialStore
	secret SecretProvider
}

func NewCredentialVault(store CredentialStore, secret SecretProvider) (*CredentialVault, error) {
	if store == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	if secret == nil {
		return nil, fmt.Errorf("core: secret provider is required")
	}
	return &CredentialVault{store: store, secret: secret}, nil
}

type VaultStoreInput struct {
	Name      string
	DriverID  string
	Scope     CredentialScope
	UserID    string
	Plaintext []byte
	CreatedBy string
}

func (v *CredentialVault) Store(ctx context.Context, in VaultStoreInput) (Credential, error) {
	if v == nil || v.store == nil || v.secret == nil {
		return Credential{}, fmt.Errorf("core: credential vault is not configured")
	}
	if err := in.Scope.Validate(); err != nil {
		return Credential{}, err
	}
	if in.Scope == CredentialScopeUser && strings.TrimSpace(in.UserID) == "" {
		return Credential{}, fmt.Errorf("%w: user scope requires a user id", ErrInvalidCredentialScope)
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return Credential{}, fmt.Errorf("core: driver id is required")
	}
	if len(in.Plaintext) == 0 {
		return Credential{}, fmt.Errorf("core: credential payload is required")
	}

	ciphertext, err := v.secret.Encrypt(ctx, in.Plaintext)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: encrypt failed", ErrCredentialUnavailable)
	}

	return v.store.Create(ctx, StoreCredentialInput{
		Name:             strings.TrimSpace(in.Name),
		DriverID:         strings.TrimSpace(in.DriverID),
		Scope:            in.Scope,
		UserID:           strings.TrimSpace(in.UserID),
		EncryptedPayload: ciphertext,
		CreatedBy:        strings.TrimSpace(in.CreatedBy),
	})
}

func (v *CredentialVault) Reveal(ctx context.Context, credentialID string) (DriverSecret, error) {
	if v == nil || v.store == nil || v.secret == nil {
		return DriverSecret{}, fmt.Errorf("core: credential vault is not configured")
	}
	credential, err := v.store.Get(ctx, strings.TrimSpace(credentialID))
	if err != nil {
		return DriverSecret{}, fmt.Errorf("%w: %s", ErrCredentialUnavailable, strings.TrimSpace(credentialID))
	}
	plaintext, err := v.secret.Decrypt(ctx, credential.EncryptedPayload)
	if err != nil {
		// The decrypt cause may carry key material context; mask it.
		return DriverSecret{}, fmt.Errorf("%w: decrypt failed for %s", ErrCredentialUnavailable, credential.ID)
	}
	return DriverSecret{CredentialID: credential.ID, Payload: plaintext}, nil
}

// ResolveForDriver picks the credential for one driver call: a per-user
// credential takes precedence over a system-wide one when both exist.
func (v *CredentialVault) ResolveForDriver(ctx context.Context, driverID string, userID string) (DriverSecret, error) {
	if v == nil || v.store == nil || v.secret == nil {
		return DriverSecret{}, fmt.Errorf("core: credential vault is not configured")
	}
	driverID = strings.TrimSpace(driverID)
	if driverID == "" {
		return DriverSecret{}, fmt.Errorf("core: driver id is required")
	}
	candidates, err := v.store.FindForDriver(ctx, driverID, strings.TrimSpace(userID))
	if err != nil {
		return DriverSecret{}, fmt.Errorf("%w: lookup failed for driver %s", ErrCredentialUnavailable, driverID)
	}

	var system *Credential
	for i := range candidates {
		candidate := candidates[i]
		switch candidate.Scope {
		case CredentialScopeUser:
			if strings.TrimSpace(userID) != "" && candidate.UserID == strings.TrimSpace(userID) {
				return v.Reveal(ctx, candidate.ID)
			}
		case CredentialScopeSystem:
			if system == nil {
				system = &candidates[i]
			}
		}
	}
	if system != nil {
		return v.Reveal(ctx, system.ID)
	}
	return DriverSecret{}, fmt.Errorf("%w: no credential for driver %s", ErrCredentialUnavailable, driverID)
}
