package lifecycle

import (
	"fmt"

	"github.com/dmitrymomot/tenantkit/pkg/tenant"
)

// State is a tenant's lifecycle state. Billing statuses other than suspended all map to Active.
type State string

const (
	StateNone         State = "none"
	StateProvisioning State = "provisioning"
	StateActive       State = "active"
	StateSuspended    State = "suspended"
	StateDeleted      State = "deleted"
)

// Event triggers a lifecycle transition.
type Event string

const (
	EventProvision   Event = "provision"
	EventProvisioned Event = "provisioned"
	EventSuspend     Event = "suspend"
	EventResume      Event = "resume"
	EventDeprovision Event = "deprovision"
)

// Transition is one allowed edge of the lifecycle.
type Transition struct {
	From  State
	Event Event
	To    State
}

// Transitions is the complete lifecycle. Deleted is terminal.
var Transitions = []Transition{
	{From: StateNone, Event: EventProvision, To: StateProvisioning},
	{From: StateProvisioning, Event: EventProvisioned, To: StateActive},
	{From: StateActive, Event: EventSuspend, To: StateSuspended},
	{From: StateSuspended, Event: EventResume, To: StateActive},
	{From: StateActive, Event: EventDeprovision, To: StateDeleted},
	{From: StateSuspended, Event: EventDeprovision, To: StateDeleted},
}

// Next returns the state event leads to from from.
func Next(from State, event Event) (State, error) {
	for _, t := range Transitions {
		if t.From == from && t.Event == event {
			return t.To, nil
		}
	}
	return from, fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, from, event)
}

// StateOf derives the lifecycle state of a stored tenant. A nil tenant has no state yet.
func StateOf(t *tenant.Tenant) State {
	switch {
	case t == nil:
		return StateNone
	case t.IsDeleted():
		return StateDeleted
	case t.Status == tenant.StatusSuspended:
		return StateSuspended
	default:
		return StateActive
	}
}
