package troubleshoot

import (
	"context"
	"errors"
	"fmt"

	"github.com/imyashkale/mcpbridge/internal/models"
)

var (
	ErrUnknownIntent    = errors.New("unknown step intent")
	ErrIntentNotHandled = errors.New("step intent has no handler")
)

// Actions are the caller's callbacks for steps that change state
type Actions struct {
	Retry          func(ctx context.Context) error
	UseCloudBridge func(ctx context.Context) error
	Refresh        func(ctx context.Context) error
}

// Dispatcher executes troubleshooting steps by intent
type Dispatcher struct {
	actions Actions
}

// NewDispatcher creates a dispatcher over the caller's actions
func NewDispatcher(actions Actions) *Dispatcher {
	return &Dispatcher{actions: actions}
}

// Execute runs step. Link and copy steps carry their payload back to the
// caller; check steps only report themselves done.
func (d *Dispatcher) Execute(ctx context.Context, step models.TroubleshootingStep) (*models.StepOutcome, error) {
	outcome := &models.StepOutcome{Intent: step.Intent}

	switch step.Intent {
	case models.IntentRetry:
		return outcome, d.run(ctx, step.Intent, d.actions.Retry, outcome)
	case models.IntentUseCloudBridge:
		return outcome, d.run(ctx, step.Intent, d.actions.UseCloudBridge, outcome)
	case models.IntentRefresh:
		return outcome, d.run(ctx, step.Intent, d.actions.Refresh, outcome)
	case models.IntentOpenLink:
		outcome.URL = step.ActionData
		outcome.Done = true
	case models.IntentCopy:
		outcome.Clipboard = step.ActionData
		outcome.Done = true
	case models.IntentMarkDone:
		outcome.Done = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, step.Intent)
	}
	return outcome, nil
}

func (d *Dispatcher) run(ctx context.Context, intent models.StepIntent, fn func(context.Context) error, outcome *models.StepOutcome) error {
	if fn == nil {
		return fmt.Errorf("%w: %s", ErrIntentNotHandled, intent)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	outcome.Done = true
	return nil
}
