package core

import (
	"fmt"
	"strings"
	"time"
)

type EventKind string

const (
	EventDispatchQueued      EventKind = "dispatch.queued"
	EventDispatchStarted     EventKind = "dispatch.started"
	EventDriverSucceeded     EventKind = "driver.succeeded"
	EventDriverFailed        EventKind = "driver.failed"
	EventDriverTimedOut      EventKind = "driver.timed_out"
	EventOperatorSuspend     EventKind = "operator.suspend"
	EventOperatorResume      EventKind = "operator.resume"
	EventOperatorResize      EventKind = "operator.resize"
	EventOperatorDeprovision EventKind = "operator.deprovision"
	EventDriftDetected       EventKind = "sync.drift_detected"
)

// Event is one fact the state machine turns into a transition: a driver
// outcome, an operator request, or a sync observation.
type Event struct {
	Kind     EventKind
	Action   TaskAction
	Actor    string
	Detail   string
	Metadata map[string]any
}

// TransitionResult carries the authorized next status together with the audit
// payload the ledger must receive for it.
type TransitionResult struct {
	From  ResourceStatus
	To    ResourceStatus
	Audit AuditEntry
}

// Transition is the single authority for what constitutes a legal move. It is
// a pure function over the current status and an event; callers apply the
// result and append the audit row inside one transactional boundary.
func Transition(resource Resource, event Event, now time.Time) (TransitionResult, error) {
	next, err := nextStatus(resource.Status, event)
	if err != nil {
		return TransitionResult{}, err
	}
	// A driver confirmation that lands on the current status (for example a
	// suspend acknowledged after the operator edge already applied) is a
	// legal no-move and still produces its audit row.
	if next != resource.Status && !resourceTransitionAllowed(resource.Status, next) {
		return TransitionResult{}, fmt.Errorf(
			"%w: %s -> %s on %s", ErrInvalidResourceStatusTransition, resource.Status, next, event.Kind,
		)
	}

	actor := strings.TrimSpace(event.Actor)
	if actor == "" {
		actor = "system"
	}
	metadata := RedactSensitiveMap(event.Metadata)
	if detail := strings.TrimSpace(event.Detail); detail != "" {
		metadata["detail"] = detail
	}
	metadata["event"] = string(event.Kind)

	return TransitionResult{
		From: resource.Status,
		To:   next,
		Audit: AuditEntry{
			ResourceID:   resource.ID,
			Actor:        actor,
			Action:       auditAction(event),
			StatusBefore: resource.Status,
			StatusAfter:  next,
			Metadata:     metadata,
			CreatedAt:    now,
		},
	}, nil
}

func nextStatus(current ResourceStatus, event Event) (ResourceStatus, error) {
	switch event.Kind {
	case EventDispatchQueued:
		return ResourceStatusQueued, nil

	case EventDispatchStarted:
		switch event.Action {
		case TaskActionProvision:
			return ResourceStatusProvisioning, nil
		case TaskActionDeprovision:
			return ResourceStatusDeprovisioning, nil
		default:
			return "", fmt.Errorf(
				"%w: %s does not start a dispatch", ErrInvalidResourceStatusTransition, event.Action,
			)
		}

	case EventDriverSucceeded:
		switch event.Action {
		case TaskActionProvision, TaskActionResume, TaskActionResize:
			return ResourceStatusActive, nil
		case TaskActionSuspend:
			return ResourceStatusSuspended, nil
		case TaskActionDeprovision:
			return ResourceStatusDeprovisioned, nil
		default:
			return "", fmt.Errorf(
				"%w: success for %s from %s", ErrInvalidResourceStatusTransition, event.Action, current,
			)
		}

	case EventDriverFailed, EventDriverTimedOut:
		return ResourceStatusFailed, nil

	case EventOperatorSuspend:
		return ResourceStatusSuspended, nil

	case EventOperatorResume:
		return ResourceStatusResuming, nil

	case EventOperatorResize:
		return ResourceStatusUpdating, nil

	case EventOperatorDeprovision:
		return ResourceStatusDeprovisioning, nil

	case EventDriftDetected:
		// Sync reconciles recorded status toward provider reality.
		switch current {
		case ResourceStatusActive:
			return ResourceStatusFailed, nil
		default:
			return "", fmt.Errorf(
				"%w: drift from %s", ErrInvalidResourceStatusTransition, current,
			)
		}

	default:
		return "", fmt.Errorf("core: unknown transition event %q", event.Kind)
	}
}

func auditAction(event Event) string {
	action := strings.TrimSpace(string(event.Action))
	if action == "" {
		return string(event.Kind)
	}
	return string(event.Kind) + ":" + action
}
