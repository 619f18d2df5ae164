package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-provision/core"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentRefunded = "payment.refunded"
	EventOrderCanceled   = "order.canceled"
)

// Event is one delivery from the billing collaborator. Type selects the
// registered handler; Source names the emitting system for claim scoping.
type Event struct {
	Source   string
	Type     string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type Result struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type Handler interface {
	EventType() string
	Handle(ctx context.Context, event Event) (Result, error)
}

type Verifier interface {
	Verify(ctx context.Context, event Event) error
}

// ClaimStore arbitrates at-least-once deliveries: exactly one claimant wins
// a key until it completes, fails, or its lease expires.
type ClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type IdempotencyKeyExtractor func(event Event) (string, error)

// Dispatcher is the explicit registration table for inbound billing events:
// handlers are registered at startup, every delivery is verified, claimed,
// and routed by event type. There is no implicit bus subscription.
type Dispatcher struct {
	Verifier   Verifier
	Store      ClaimStore
	ExtractKey IdempotencyKeyExtractor
	KeyTTL     time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(verifier Verifier, store ClaimStore) *Dispatcher {
	return &Dispatcher{
		Verifier:   verifier,
		Store:      store,
		ExtractKey: DefaultIdempotencyKeyExtractor,
		KeyTTL:     10 * time.Minute,
		handlers:   map[string]Handler{},
	}
}

func (d *Dispatcher) Register(handler Handler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	eventType := normalizeEventType(handler.EventType())
	if !isSupportedEventType(eventType) {
		return inboundBadInput(
			fmt.Sprintf("inbound: unsupported event type %q", eventType),
			map[string]any{"event_type": eventType},
		)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[eventType]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for event type %q", eventType),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ProvisionErrorStateConflict,
			map[string]any{"event_type": eventType},
		)
	}
	d.handlers[eventType] = handler
	return nil
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) (Result, error) {
	if d == nil {
		return Result{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	event.Source = strings.TrimSpace(event.Source)
	event.Type = normalizeEventType(event.Type)
	if event.Source == "" {
		return Result{}, inboundBadInput("inbound: event source is required", map[string]any{
			"event_type": event.Type,
		})
	}
	if !isSupportedEventType(event.Type) {
		return Result{}, inboundBadInput(
			fmt.Sprintf("inbound: unsupported event type %q", event.Type),
			map[string]any{"source": event.Source, "event_type": event.Type},
		)
	}
	if d.Verifier != nil {
		if err := d.Verifier.Verify(ctx, event); err != nil {
			return Result{
					Accepted:   false,
					StatusCode: http.StatusUnauthorized,
					Metadata: map[string]any{
						"source":     event.Source,
						"event_type": event.Type,
						"rejected":   true,
					},
				}, inboundWrapError(
					err,
					goerrors.CategoryAuth,
					"inbound: event verification failed",
					http.StatusUnauthorized,
					core.ProvisionErrorWebhookVerification,
					map[string]any{"source": event.Source, "event_type": event.Type},
				)
		}
	}

	claimID := ""
	if d.Store != nil {
		extractor := d.ExtractKey
		if extractor == nil {
			extractor = DefaultIdempotencyKeyExtractor
		}
		key, err := extractor(event)
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryBadInput,
				"inbound: resolve idempotency key",
				http.StatusBadRequest,
				core.ProvisionErrorBadInput,
				map[string]any{"source": event.Source, "event_type": event.Type},
			)
		}
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, event.Source+":"+event.Type+":"+key, d.keyTTL())
		if err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.ProvisionErrorInternal,
				map[string]any{
					"source":      event.Source,
					"event_type":  event.Type,
					"idempotency": key,
				},
			)
		}
		if !accepted {
			return Result{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata: map[string]any{
					"source":     event.Source,
					"event_type": event.Type,
					"deduped":    true,
				},
			}, nil
		}
	}

	handler := d.handlerFor(event.Type)
	if handler == nil {
		return Result{}, inboundError(
			fmt.Sprintf("inbound: no handler registered for event type %q", event.Type),
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			core.ProvisionErrorBadInput,
			map[string]any{"source": event.Source, "event_type": event.Type},
		)
	}
	result, err := handler.Handle(ctx, event)
	if err != nil {
		handlerErr := inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: handler execution failed",
			http.StatusBadGateway,
			core.ProvisionErrorProviderFailed,
			map[string]any{"source": event.Source, "event_type": event.Type},
		)
		if d.Store != nil && claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err, time.Time{}); failErr != nil {
				return Result{}, errors.Join(
					handlerErr,
					inboundWrapError(
						failErr,
						goerrors.CategoryOperation,
						"inbound: mark idempotency claim failed",
						http.StatusInternalServerError,
						core.ProvisionErrorInternal,
						map[string]any{"source": event.Source, "event_type": event.Type, "claim_id": claimID},
					),
				)
			}
		}
		return Result{}, handlerErr
	}
	retryableFailure := !result.Accepted || result.StatusCode >= http.StatusInternalServerError
	if retryableFailure {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusBadGateway,
			core.ProvisionErrorProviderFailed,
			map[string]any{
				"source":      event.Source,
				"event_type":  event.Type,
				"status_code": result.StatusCode,
			},
		)
		if d.Store != nil && claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, retryErr, time.Time{}); failErr != nil {
				return result, errors.Join(
					retryErr,
					inboundWrapError(
						failErr,
						goerrors.CategoryOperation,
						"inbound: mark idempotency claim failed",
						http.StatusInternalServerError,
						core.ProvisionErrorInternal,
						map[string]any{"source": event.Source, "event_type": event.Type, "claim_id": claimID},
					),
				)
			}
		}
		return result, retryErr
	}
	if d.Store != nil && claimID != "" {
		if err := d.Store.Complete(ctx, claimID); err != nil {
			return Result{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: complete idempotency claim",
				http.StatusInternalServerError,
				core.ProvisionErrorInternal,
				map[string]any{"source": event.Source, "event_type": event.Type, "claim_id": claimID},
			)
		}
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["source"] = event.Source
	result.Metadata["event_type"] = event.Type
	return result, nil
}

func DefaultIdempotencyKeyExtractor(event Event) (string, error) {
	if event.Metadata != nil {
		if value := trimAny(event.Metadata["idempotency_key"]); value != "" {
			return value, nil
		}
		if value := trimAny(event.Metadata["delivery_id"]); value != "" {
			return value, nil
		}
		if value := trimAny(event.Metadata["message_id"]); value != "" {
			return value, nil
		}
	}
	if event.Headers != nil {
		if value := headerValue(event.Headers, "idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(event.Headers, "x-idempotency-key"); value != "" {
			return value, nil
		}
		if value := headerValue(event.Headers, "x-message-id"); value != "" {
			return value, nil
		}
	}
	return "", inboundBadInput("inbound: idempotency key is required", map[string]any{
		"source":     event.Source,
		"event_type": event.Type,
	})
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return 10 * time.Minute
}

func (d *Dispatcher) handlerFor(eventType string) Handler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeEventType(eventType)]
}

func normalizeEventType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func isSupportedEventType(eventType string) bool {
	switch normalizeEventType(eventType) {
	case EventPaymentCaptured, EventPaymentRefunded, EventOrderCanceled:
		return true
	default:
		return false
	}
}

func trimAny(value any) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
