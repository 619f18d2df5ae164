package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-provision/core"
)

// Provisioner is the slice of the orchestrator the listener needs.
type Provisioner interface {
	Kick(ctx context.Context, req core.KickRequest) (core.Resource, error)
}

// paymentCapturedPayload is the normalized order shape the billing
// collaborator posts on payment capture.
type paymentCapturedPayload struct {
	OrderRef  string            `json:"order_ref"`
	UserID    string            `json:"user_id"`
	LineItems []paymentLineItem `json:"line_items"`
	Metadata  map[string]any    `json:"metadata"`
}

type paymentLineItem struct {
	Ref                  string `json:"ref"`
	PlanCode             string `json:"plan_code"`
	RequiresProvisioning bool   `json:"requires_provisioning"`
}

// PaymentCapturedHandler turns a captured payment into a kick request. Orders
// whose line items never require provisioning are acknowledged and skipped.
type PaymentCapturedHandler struct {
	provisioner Provisioner
}

func NewPaymentCapturedHandler(provisioner Provisioner) *PaymentCapturedHandler {
	return &PaymentCapturedHandler{provisioner: provisioner}
}

func (h *PaymentCapturedHandler) EventType() string {
	return EventPaymentCaptured
}

func (h *PaymentCapturedHandler) Handle(ctx context.Context, event Event) (Result, error) {
	if h == nil || h.provisioner == nil {
		return Result{}, inboundInternal("inbound: payment captured handler is not wired", nil)
	}
	payload, err := decodePaymentCapturedPayload(event.Body)
	if err != nil {
		return Result{}, err
	}

	item, provisionable := payload.firstProvisionableItem()
	if !provisionable {
		return Result{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"order_ref": payload.OrderRef,
				"skipped":   "no provisionable line items",
			},
		}, nil
	}

	resource, err := h.provisioner.Kick(ctx, core.KickRequest{
		OrderRef:    payload.OrderRef,
		UserID:      payload.UserID,
		PlanCode:    item.PlanCode,
		LineItemRef: item.Ref,
		Metadata:    payload.Metadata,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Accepted:   true,
		StatusCode: http.StatusAccepted,
		Metadata: map[string]any{
			"order_ref":   payload.OrderRef,
			"resource_id": resource.ID,
			"status":      string(resource.Status),
		},
	}, nil
}

func decodePaymentCapturedPayload(body []byte) (paymentCapturedPayload, error) {
	var payload paymentCapturedPayload
	if len(body) == 0 {
		return payload, inboundBadInput("inbound: payment captured payload is empty", nil)
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, inboundBadInput(
			fmt.Sprintf("inbound: decode payment captured payload: %v", err),
			nil,
		)
	}
	payload.OrderRef = strings.TrimSpace(payload.OrderRef)
	payload.UserID = strings.TrimSpace(payload.UserID)
	if payload.OrderRef == "" {
		return payload, inboundBadInput("inbound: payment captured payload is missing order_ref", nil)
	}
	if payload.UserID == "" {
		return payload, inboundBadInput("inbound: payment captured payload is missing user_id", map[string]any{
			"order_ref": payload.OrderRef,
		})
	}
	return payload, nil
}

// firstProvisionableItem returns the line item that drives provisioning.
// One resource exists per order, so the first provisionable item wins.
func (p paymentCapturedPayload) firstProvisionableItem() (paymentLineItem, bool) {
	for _, item := range p.LineItems {
		if !item.RequiresProvisioning {
			continue
		}
		if strings.TrimSpace(item.PlanCode) == "" {
			continue
		}
		return paymentLineItem{
			Ref:                  strings.TrimSpace(item.Ref),
			PlanCode:             strings.TrimSpace(item.PlanCode),
			RequiresProvisioning: true,
		}, true
	}
	return paymentLineItem{}, false
}

var _ Handler = (*PaymentCapturedHandler)(nil)
