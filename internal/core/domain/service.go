package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Service States
// =============================================================================

// ServiceState is the lifecycle state of the managed service group.
type ServiceState string

const (
	StateUnknown    ServiceState = ""
	StateStopped    ServiceState = "stopped"
	StateStarting   ServiceState = "starting"
	StateRunning    ServiceState = "running"
	StateDegraded   ServiceState = "degraded"
	StateStopping   ServiceState = "stopping"
	StateRestarting ServiceState = "restarting"
	StateUpdating   ServiceState = "updating"
	StateFailed     ServiceState = "failed"
)

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions. A (state,
// transition) pair not listed here is rejected, never silently coerced.
var validTransitions = map[ServiceState][]ServiceState{
	StateStopped:    {StateStarting, StateRestarting},
	StateStarting:   {StateRunning, StateDegraded, StateFailed},
	StateRunning:    {StateStopping, StateRestarting, StateUpdating, StateDegraded, StateFailed},
	StateDegraded:   {StateStarting, StateStopping, StateRestarting, StateUpdating, StateRunning, StateFailed},
	StateStopping:   {StateStopped, StateFailed},
	StateRestarting: {StateRunning, StateDegraded, StateFailed},
	StateUpdating:   {StateRunning, StateDegraded, StateFailed},
	StateFailed:     {StateStarting, StateRestarting, StateStopping},
}

// ValidateTransition checks whether a state transition is allowed.
func ValidateTransition(from, to ServiceState) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// =============================================================================
// Service Group
// =============================================================================

// ServiceGroup tracks the lifecycle state of the managed application stack.
// One invocation operates on exactly one group.
type ServiceGroup struct {
	Name      string       `json:"name"`
	State     ServiceState `json:"state"`
	Version   string       `json:"version,omitempty"`
	LastError string       `json:"last_error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewServiceGroup creates a service group in an unknown state. The caller
// derives the initial state from a health probe before transitioning.
func NewServiceGroup(name string) *ServiceGroup {
	return &ServiceGroup{
		Name:      name,
		State:     StateUnknown,
		UpdatedAt: time.Now().UTC(),
	}
}

// Transition attempts to move the group to a new state.
func (g *ServiceGroup) Transition(to ServiceState) error {
	if err := ValidateTransition(g.State, to); err != nil {
		return err
	}
	g.State = to
	g.UpdatedAt = time.Now().UTC()
	if to == StateStarting || to == StateRunning {
		g.LastError = ""
	}
	return nil
}

// Fail moves the group to Failed with an error message. Failing is allowed
// from any non-terminal state so a mid-transition failure always ends in an
// explicit state, never an undefined one.
func (g *ServiceGroup) Fail(message string) {
	g.State = StateFailed
	g.LastError = message
	g.UpdatedAt = time.Now().UTC()
}

// Observe sets the state derived from a health probe. Used to seed a fresh
// invocation; bypasses transition validation because no operation ran.
func (g *ServiceGroup) Observe(state ServiceState) {
	g.State = state
	g.UpdatedAt = time.Now().UTC()
}
