package adapter

import (
	"context"

	"github.com/pagebridge/pagebridge/internal/activity"
)

// Bot is the turn-processing pipeline collaborator. It owns its own state;
// the adapter only constructs a turn context and invokes it once per
// dispatched activity. Cancellation is cooperative through ctx; an in-flight
// platform call is not guaranteed to be interrupted.
type Bot interface {
	OnTurn(ctx context.Context, turn *TurnContext) error
}

// TurnContext binds one inbound activity to the adapter that received it.
type TurnContext struct {
	adapter *Adapter
	current activity.Activity
}

// NewTurnContext creates a turn context for the given adapter and activity.
func NewTurnContext(a *Adapter, item activity.Activity) *TurnContext {
	return &TurnContext{adapter: a, current: item}
}

// Activity returns the inbound activity for this turn.
func (t *TurnContext) Activity() activity.Activity {
	return t.current
}

// SendActivities sends outbound activities through the owning adapter.
func (t *TurnContext) SendActivities(ctx context.Context, activities ...activity.Activity) ([]activity.ResourceResponse, error) {
	return t.adapter.SendActivities(ctx, activities)
}
