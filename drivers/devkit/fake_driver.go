// Package devkit is the test and integration kit for driver authors. It
// ships a scriptable fake driver, conformance validators for the pluggable
// contracts, and small in-memory fixtures for wiring end-to-end scenarios
// without a provider account.
package devkit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-provision/core"
)

// ProvisionScript is one scripted outcome for a provision or resize call.
// Scripts play in call order; the last one repeats once exhausted.
type ProvisionScript struct {
	ProviderTaskID string
	Err            error
}

// PollScript is one scripted outcome for a poll call.
type PollScript struct {
	Result core.PollResult
	Err    error
}

// FakeDriver implements the full driver contract plus every optional
// capability interface. Which capabilities it advertises is controlled by the
// With* builders, so registry gating behaves exactly as it would for a real
// driver. Every call records its idempotency key.
type FakeDriver struct {
	mu sync.Mutex

	id   string
	kind core.DriverKind

	provisionScripts []ProvisionScript
	pollScripts      []PollScript

	webhooksEnabled  bool
	webhookSecret    string
	metricsEnabled   bool
	inventoryEnabled bool

	regions []string
	images  []string
	plans   []string
	quotas  map[string]int
	usage   []core.UsageSample
	health  core.PollResult

	idempotencyKeys []string
	provisionCalls  int
	pollCalls       int
	lifecycleCalls  map[core.TaskAction]int
	webhookCalls    int
}

func NewFakeDriver(id string) *FakeDriver {
	return &FakeDriver{
		id:             strings.TrimSpace(id),
		kind:           core.DriverKindCompute,
		quotas:         map[string]int{},
		health:         core.PollResult{State: core.PollStateCompleted, Detail: "healthy"},
		lifecycleCalls: map[core.TaskAction]int{},
	}
}

func (d *FakeDriver) WithKind(kind core.DriverKind) *FakeDriver {
	d.kind = kind
	return d
}

func (d *FakeDriver) ScriptProvision(scripts ...ProvisionScript) *FakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.provisionScripts = append(d.provisionScripts, scripts...)
	return d
}

func (d *FakeDriver) ScriptPoll(scripts ...PollScript) *FakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pollScripts = append(d.pollScripts, scripts...)
	return d
}

// WithWebhooks advertises the webhooks capability. Deliveries are verified
// with an HMAC-SHA256 of the body under secret; an empty secret accepts any
// delivery.
func (d *FakeDriver) WithWebhooks(secret string) *FakeDriver {
	d.webhooksEnabled = true
	d.webhookSecret = secret
	return d
}

func (d *FakeDriver) WithInventory(regions, images, plans []string, quotas map[string]int) *FakeDriver {
	d.inventoryEnabled = true
	d.regions = append([]string(nil), regions...)
	d.images = append([]string(nil), images...)
	d.plans = append([]string(nil), plans...)
	d.quotas = map[string]int{}
	for name, limit := range quotas {
		d.quotas[name] = limit
	}
	return d
}

func (d *FakeDriver) WithMetrics(usage []core.UsageSample, health core.PollResult) *FakeDriver {
	d.metricsEnabled = true
	d.usage = append([]core.UsageSample(nil), usage...)
	d.health = health
	return d
}

func (d *FakeDriver) ID() string            { return d.id }
func (d *FakeDriver) Kind() core.DriverKind { return d.kind }

func (d *FakeDriver) Capabilities() []core.CapabilityDescriptor {
	capabilities := []core.CapabilityDescriptor{
		{Name: core.CapabilityProvision, Description: "scripted lifecycle calls"},
	}
	if d.webhooksEnabled {
		capabilities = append(capabilities, core.CapabilityDescriptor{Name: core.CapabilityWebhooks})
	}
	if d.metricsEnabled {
		capabilities = append(capabilities, core.CapabilityDescriptor{Name: core.CapabilityMetrics})
	}
	if d.inventoryEnabled {
		capabilities = append(capabilities, core.CapabilityDescriptor{Name: core.CapabilityInventory})
	}
	return capabilities
}

func (d *FakeDriver) Provision(_ context.Context, call core.ProvisionCall) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.idempotencyKeys = append(d.idempotencyKeys, call.IdempotencyKey)
	attempt := d.provisionCalls
	d.provisionCalls++

	if script, ok := scriptAt(d.provisionScripts, attempt); ok {
		return script.ProviderTaskID, script.Err
	}
	return "devkit-task-" + call.Resource.OrderRef, nil
}

func (d *FakeDriver) Poll(_ context.Context, providerTaskID string) (core.PollResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	attempt := d.pollCalls
	d.pollCalls++

	if script, ok := scriptAt(d.pollScripts, attempt); ok {
		return script.Result, script.Err
	}
	return core.PollResult{State: core.PollStatePending, ProviderRef: providerTaskID}, nil
}

func (d *FakeDriver) Deprovision(_ context.Context, call core.LifecycleCall) (string, error) {
	return d.lifecycle(core.TaskActionDeprovision, call.IdempotencyKey)
}

func (d *FakeDriver) Suspend(_ context.Context, call core.LifecycleCall) (string, error) {
	return d.lifecycle(core.TaskActionSuspend, call.IdempotencyKey)
}

func (d *FakeDriver) Resume(_ context.Context, call core.LifecycleCall) (string, error) {
	return d.lifecycle(core.TaskActionResume, call.IdempotencyKey)
}

func (d *FakeDriver) Resize(_ context.Context, call core.ProvisionCall) (string, error) {
	return d.lifecycle(core.TaskActionResize, call.IdempotencyKey)
}

func (d *FakeDriver) lifecycle(action core.TaskAction, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lifecycleCalls[action]++
	d.idempotencyKeys = append(d.idempotencyKeys, key)
	return "devkit-task-" + string(action), nil
}

func (d *FakeDriver) VerifySignature(_ context.Context, req core.InboundRequest) error {
	if d.webhookSecret == "" {
		return nil
	}
	expected := SignWebhookPayload(d.webhookSecret, req.Body)
	provided := headerValue(req.Headers, WebhookSignatureHeader)
	if provided == "" {
		return fmt.Errorf("devkit: missing %s header", WebhookSignatureHeader)
	}
	if !hmac.Equal([]byte(expected), []byte(provided)) {
		return fmt.Errorf("devkit: webhook signature mismatch")
	}
	return nil
}

func (d *FakeDriver) HandleWebhook(_ context.Context, req core.InboundRequest) (string, core.PollResult, error) {
	d.mu.Lock()
	d.webhookCalls++
	d.mu.Unlock()

	var payload webhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return "", core.PollResult{}, fmt.Errorf("devkit: decode webhook payload: %w", err)
	}
	if strings.TrimSpace(payload.TaskRef) == "" {
		return "", core.PollResult{}, fmt.Errorf("devkit: webhook payload is missing task_ref")
	}

	state, err := pollStateFromString(payload.State)
	if err != nil {
		return "", core.PollResult{}, err
	}
	return payload.TaskRef, core.PollResult{
		State:       state,
		ProviderRef: payload.ProviderRef,
		Detail:      payload.Detail,
		Metadata:    payload.Metadata,
	}, nil
}

func (d *FakeDriver) Usage(context.Context, core.Resource) ([]core.UsageSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.UsageSample(nil), d.usage...), nil
}

func (d *FakeDriver) Health(context.Context, core.Resource) (core.PollResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.health, nil
}

func (d *FakeDriver) Costs(context.Context, core.Resource) ([]core.UsageSample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]core.UsageSample(nil), d.usage...), nil
}

func (d *FakeDriver) Regions(context.Context) ([]string, error) {
	return append([]string(nil), d.regions...), nil
}

func (d *FakeDriver) Images(context.Context) ([]string, error) {
	return append([]string(nil), d.images...), nil
}

func (d *FakeDriver) Plans(context.Context) ([]string, error) {
	return append([]string(nil), d.plans...), nil
}

func (d *FakeDriver) Quotas(context.Context) (map[string]int, error) {
	out := map[string]int{}
	for name, limit := range d.quotas {
		out[name] = limit
	}
	return out, nil
}

// IdempotencyKeys returns every key recorded across provision and lifecycle
// calls, in call order.
func (d *FakeDriver) IdempotencyKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.idempotencyKeys...)
}

func (d *FakeDriver) ProvisionCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.provisionCalls
}

func (d *FakeDriver) PollCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pollCalls
}

func (d *FakeDriver) LifecycleCalls(action core.TaskAction) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lifecycleCalls[action]
}

func (d *FakeDriver) WebhookCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.webhookCalls
}

// WebhookSignatureHeader carries the hex HMAC-SHA256 of the delivery body.
const WebhookSignatureHeader = "X-Devkit-Signature"

// SignWebhookPayload produces the signature a valid delivery must carry.
func SignWebhookPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type webhookPayload struct {
	TaskRef     string         `json:"task_ref"`
	State       string         `json:"state"`
	ProviderRef string         `json:"provider_ref"`
	Detail      string         `json:"detail"`
	Metadata    map[string]any `json:"metadata"`
}

func pollStateFromString(raw string) (core.PollState, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(core.PollStateCompleted):
		return core.PollStateCompleted, nil
	case string(core.PollStatePending):
		return core.PollStatePending, nil
	case string(core.PollStateFailed):
		return core.PollStateFailed, nil
	default:
		return "", fmt.Errorf("devkit: unknown poll state %q", raw)
	}
}

func scriptAt[T any](scripts []T, attempt int) (T, bool) {
	if len(scripts) == 0 {
		var zero T
		return zero, false
	}
	if attempt < len(scripts) {
		return scripts[attempt], true
	}
	return scripts[len(scripts)-1], true
}

func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

var (
	_ core.Driver          = (*FakeDriver)(nil)
	_ core.WebhookDriver   = (*FakeDriver)(nil)
	_ core.MetricsDriver   = (*FakeDriver)(nil)
	_ core.InventoryDriver = (*FakeDriver)(nil)
)
