// Package inbound routes billing events into the orchestrator.
//
// Handlers are registered on the Dispatcher at startup, so the wiring between
// the payment-captured event and a provisioning kick is an explicit table
// rather than a bus subscription. Deliveries use claim/complete/fail
// idempotency semantics so transient handler failures remain retryable while
// duplicates stay suppressed.
package inbound
