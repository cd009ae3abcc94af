package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// State Machine Tests
// =============================================================================

func TestValidateTransition_AllowedPaths(t *testing.T) {
	tests := []struct {
		name string
		from ServiceState
		to   ServiceState
	}{
		{"stopped to starting", StateStopped, StateStarting},
		{"stopped to restarting", StateStopped, StateRestarting},
		{"starting to running", StateStarting, StateRunning},
		{"starting to failed", StateStarting, StateFailed},
		{"running to stopping", StateRunning, StateStopping},
		{"running to updating", StateRunning, StateUpdating},
		{"running to degraded", StateRunning, StateDegraded},
		{"degraded to updating", StateDegraded, StateUpdating},
		{"degraded to running", StateDegraded, StateRunning},
		{"stopping to stopped", StateStopping, StateStopped},
		{"restarting to running", StateRestarting, StateRunning},
		{"updating to running", StateUpdating, StateRunning},
		{"updating to failed", StateUpdating, StateFailed},
		{"failed to starting", StateFailed, StateStarting},
		{"failed to restarting", StateFailed, StateRestarting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, ValidateTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition_RejectedPaths(t *testing.T) {
	tests := []struct {
		name string
		from ServiceState
		to   ServiceState
	}{
		{"stopped to running skips starting", StateStopped, StateRunning},
		{"stopped to stopping", StateStopped, StateStopping},
		{"running to starting", StateRunning, StateStarting},
		{"stopping to running", StateStopping, StateRunning},
		{"updating to stopping", StateUpdating, StateStopping},
		{"failed to running", StateFailed, StateRunning},
		{"unknown has no transitions", StateUnknown, StateRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

// =============================================================================
// Service Group Tests
// =============================================================================

func TestServiceGroup_TransitionUpdatesState(t *testing.T) {
	g := NewServiceGroup("app")
	g.Observe(StateStopped)

	require.NoError(t, g.Transition(StateStarting))
	require.NoError(t, g.Transition(StateRunning))

	assert.Equal(t, StateRunning, g.State)
	assert.False(t, g.UpdatedAt.IsZero())
}

func TestServiceGroup_InvalidTransitionLeavesStateUntouched(t *testing.T) {
	g := NewServiceGroup("app")
	g.Observe(StateRunning)

	err := g.Transition(StateStarting)

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateRunning, g.State)
}

func TestServiceGroup_FailAllowedFromAnyState(t *testing.T) {
	for _, from := range []ServiceState{StateStarting, StateRunning, StateUpdating, StateStopping, StateUnknown} {
		g := NewServiceGroup("app")
		g.Observe(from)

		g.Fail("health check timed out")

		assert.Equal(t, StateFailed, g.State)
		assert.Equal(t, "health check timed out", g.LastError)
	}
}

func TestServiceGroup_StartingClearsLastError(t *testing.T) {
	g := NewServiceGroup("app")
	g.Fail("boom")
	require.Equal(t, StateFailed, g.State)

	require.NoError(t, g.Transition(StateStarting))

	assert.Empty(t, g.LastError)
}

func TestServiceGroup_ObserveBypassesValidation(t *testing.T) {
	g := NewServiceGroup("app")
	assert.Equal(t, StateUnknown, g.State)

	g.Observe(StateDegraded)

	assert.Equal(t, StateDegraded, g.State)
}
