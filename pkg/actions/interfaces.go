package actions

import (
	"context"
)

// Action is a long-running part of the bot supervised by the agent
type Action interface {
	// Name returns the unique identifier for this action
	Name() string
	// Execute runs the action until ctx is done or Stop is called
	Execute(ctx context.Context) error
	// Stop cleanly stops the action
	Stop()
}
