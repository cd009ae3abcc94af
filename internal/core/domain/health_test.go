package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Health Aggregation Tests
// =============================================================================

func healthSet(states map[string]bool) map[string]HealthResult {
	results := make(map[string]HealthResult, len(states))
	for name, healthy := range states {
		results[name] = HealthResult{ServiceName: name, Healthy: healthy}
	}
	return results
}

func TestAllHealthy(t *testing.T) {
	tests := []struct {
		name     string
		states   map[string]bool
		expected bool
	}{
		{"all healthy", map[string]bool{"web": true, "db": true}, true},
		{"one unhealthy", map[string]bool{"web": true, "db": false}, false},
		{"all unhealthy", map[string]bool{"web": false, "db": false}, false},
		{"empty set is not healthy", map[string]bool{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AllHealthy(healthSet(tt.states)))
		})
	}
}

func TestUnhealthyServices_SortedNames(t *testing.T) {
	results := healthSet(map[string]bool{
		"web":   false,
		"db":    true,
		"cache": false,
		"queue": false,
	})

	assert.Equal(t, []string{"cache", "queue", "web"}, UnhealthyServices(results))
}

func TestAggregateHealth(t *testing.T) {
	tests := []struct {
		name     string
		states   map[string]bool
		expected ServiceState
	}{
		{"all healthy is running", map[string]bool{"web": true, "db": true}, StateRunning},
		{"none healthy is stopped", map[string]bool{"web": false, "db": false}, StateStopped},
		{"mixed is degraded", map[string]bool{"web": true, "db": false}, StateDegraded},
		{"empty set is stopped", map[string]bool{}, StateStopped},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AggregateHealth(healthSet(tt.states)))
		})
	}
}
