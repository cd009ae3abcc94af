// Package rollback provides the operation-scoped ledger of compensating
// actions. The ledger reverses side effects the snapshot mechanism cannot:
// an already-started container, an external call already made.
package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stackward/stackward/internal/core/domain"
)

// =============================================================================
// Registry
// =============================================================================

// Action is one deferred compensating step.
type Action struct {
	Description string
	fn          func(context.Context) error
	registered  time.Time
}

// Registry is the ephemeral LIFO stack of compensating actions for one
// in-flight operation. It is reset at the start of each safe operation,
// discarded on success, and unwound in reverse order on failure.
type Registry struct {
	actions []Action
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger.With("component", "rollback_registry")}
}

// Register appends a compensating action to the ledger. The action is
// deferred, not executed.
func (r *Registry) Register(description string, fn func(context.Context) error) {
	r.actions = append(r.actions, Action{
		Description: description,
		fn:          fn,
		registered:  time.Now().UTC(),
	})
	r.logger.Debug("rollback action registered", "description", description, "position", len(r.actions))
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.actions)
}

// Clear discards the ledger. Called on operation success.
func (r *Registry) Clear() {
	r.actions = nil
}

// =============================================================================
// Unwind
// =============================================================================

// ActionFailure records one compensating action that failed during unwind.
type ActionFailure struct {
	Description string
	Err         error
}

// Report summarizes an unwind.
type Report struct {
	Attempted int
	Succeeded int
	Failed    []ActionFailure
}

// Err returns ErrRollbackPartial when any action failed, nil otherwise.
func (rp *Report) Err() error {
	if rp == nil || len(rp.Failed) == 0 {
		return nil
	}
	descs := make([]string, 0, len(rp.Failed))
	for _, f := range rp.Failed {
		descs = append(descs, fmt.Sprintf("%s: %v", f.Description, f.Err))
	}
	return fmt.Errorf("%w: %s", domain.ErrRollbackPartial, strings.Join(descs, "; "))
}

// String renders the report for operator-facing messages.
func (rp *Report) String() string {
	if rp == nil {
		return "no rollback attempted"
	}
	return fmt.Sprintf("%d/%d rollback actions succeeded", rp.Succeeded, rp.Attempted)
}

// Unwind executes the registered actions in strict reverse registration
// order. Each failure is caught and logged but does not halt the unwind of
// the remaining actions; failures are aggregated in the report. The ledger
// is consumed by the unwind.
func (r *Registry) Unwind(ctx context.Context) *Report {
	report := &Report{Attempted: len(r.actions)}

	for i := len(r.actions) - 1; i >= 0; i-- {
		action := r.actions[i]
		r.logger.Info("executing rollback action", "description", action.Description)
		if err := action.fn(ctx); err != nil {
			r.logger.Error("rollback action failed",
				"description", action.Description,
				"error", err,
			)
			report.Failed = append(report.Failed, ActionFailure{
				Description: action.Description,
				Err:         err,
			})
			continue
		}
		report.Succeeded++
	}

	r.actions = nil
	return report
}
