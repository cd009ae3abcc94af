package domain

import (
	"sort"
	"time"
)

// =============================================================================
// Health Results
// =============================================================================

// HealthResult is the outcome of a single liveness/readiness probe for one
// service. Results are ephemeral: produced, consumed, never persisted.
type HealthResult struct {
	ServiceName string    `json:"service_name"`
	Healthy     bool      `json:"healthy"`
	Reason      string    `json:"reason,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
}

// =============================================================================
// Health Aggregation (Pure Functions)
// =============================================================================

// AllHealthy reports whether every service in the result set is healthy.
// An empty result set is not healthy.
func AllHealthy(results map[string]HealthResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if !r.Healthy {
			return false
		}
	}
	return true
}

// UnhealthyServices returns the names of unhealthy services, sorted.
func UnhealthyServices(results map[string]HealthResult) []string {
	var names []string
	for name, r := range results {
		if !r.Healthy {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AggregateHealth maps a probe result set to an observed service group state.
// All healthy = running, none healthy = stopped, a mix = degraded.
func AggregateHealth(results map[string]HealthResult) ServiceState {
	if len(results) == 0 {
		return StateStopped
	}
	healthy := 0
	for _, r := range results {
		if r.Healthy {
			healthy++
		}
	}
	switch healthy {
	case len(results):
		return StateRunning
	case 0:
		return StateStopped
	default:
		return StateDegraded
	}
}
