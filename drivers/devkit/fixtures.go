package devkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-provision/core"
	"github.com/goliatone/go-provision/inbound"
)

// NewClaimStoreFixture returns the in-memory claim store wired the way the
// inbound dispatcher expects it.
func NewClaimStoreFixture() inbound.ClaimStore {
	return inbound.NewInMemoryClaimStore()
}

// StaticSecretProvider is a secret provider without real cryptography: it
// prefixes the payload so tests can assert that vault plumbing ran. Never use
// it outside tests.
type StaticSecretProvider struct {
	Prefix string
}

func (p StaticSecretProvider) prefix() []byte {
	if p.Prefix == "" {
		return []byte("devkit-enc:")
	}
	return []byte(p.Prefix)
}

func (p StaticSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	return append(p.prefix(), plaintext...), nil
}

func (p StaticSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	prefix := p.prefix()
	if len(ciphertext) < len(prefix) || string(ciphertext[:len(prefix)]) != string(prefix) {
		return nil, fmt.Errorf("devkit: ciphertext is missing the fixture prefix")
	}
	return append([]byte(nil), ciphertext[len(prefix):]...), nil
}

// RecordingEventHandler captures lifecycle events for assertions.
type RecordingEventHandler struct {
	mu     sync.Mutex
	events []core.LifecycleEvent
}

func (h *RecordingEventHandler) Handle(_ context.Context, event core.LifecycleEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *RecordingEventHandler) Events() []core.LifecycleEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]core.LifecycleEvent(nil), h.events...)
}

func (h *RecordingEventHandler) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.events))
	for _, event := range h.events {
		names = append(names, event.Name)
	}
	return names
}

var (
	_ core.SecretProvider        = StaticSecretProvider{}
	_ core.LifecycleEventHandler = (*RecordingEventHandler)(nil)
)
