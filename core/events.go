package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderPlaced           = "provision.order.placed"
	EventResourceProvisioned   = "provision.resource.provisioned"
	EventResourceSuspended     = "provision.resource.suspended"
	EventResourceDeprovisioned = "provision.resource.deprovisioned"
	EventResourceFailed        = "provision.resource.failed"
)

// MemoryLifecycleBus is the in-process event hand-off: handlers are
// registered during process-wide initialization and invoked synchronously in
// registration order.
type MemoryLifecycleBus struct {
	mu       sync.RWMutex
	handlers []LifecycleEventHandler
	logger   Logger
}

func NewMemoryLifecycleBus(logger Logger) *MemoryLifecycleBus {
	return &MemoryLifecycleBus{logger: logger}
}

func (b *MemoryLifecycleBus) Subscribe(handler LifecycleEventHandler) {
	if b == nil || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, handler)
	b.mu.Unlock()
}

func (b *MemoryLifecycleBus) Publish(ctx context.Context, event LifecycleEvent) error {
	if b == nil {
		return nil
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	event.Payload = RedactSensitiveMap(event.Payload)
	event.Metadata = RedactSensitiveMap(event.Metadata)

	b.mu.RLock()
	handlers := append([]LifecycleEventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler.Handle(ctx, event); err != nil {
			// Event fan-out is best effort; a misbehaving subscriber must not
			// roll back the transition that already committed.
			if b.logger != nil {
				b.logger.Warn("lifecycle handler failed", "event", event.Name, "error", err)
			}
		}
	}
	return nil
}
