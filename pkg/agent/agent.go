// Package agent supervises the bot's long-running actions.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/pkg/actions"
)

type Agent struct {
	logger  *logrus.Logger
	actions map[string]actions.Action
	order   []string
	mu      sync.RWMutex
}

type Config struct {
	Logger *logrus.Logger
}

func New(config Config) *Agent {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Agent{
		logger:  config.Logger,
		actions: make(map[string]actions.Action),
	}
}

// RegisterAction adds a new action to the agent
func (a *Agent) RegisterAction(action actions.Action) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := action.Name()
	if _, exists := a.actions[name]; exists {
		return fmt.Errorf("action %s already registered", name)
	}

	a.actions[name] = action
	a.order = append(a.order, name)
	return nil
}

// Run starts all registered actions and blocks until ctx is canceled or one of them fails.
// Every action is stopped and waited for before Run returns.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.RLock()
	registered := make([]actions.Action, 0, len(a.order))
	for _, name := range a.order {
		registered = append(registered, a.actions[name])
	}
	a.mu.RUnlock()

	if len(registered) == 0 {
		return errors.New("no actions registered")
	}
	a.logger.WithField("actions", len(registered)).Info("Starting agent with registered actions")

	errChan := make(chan error, len(registered))
	var wg sync.WaitGroup
	for _, action := range registered {
		wg.Add(1)
		go func(action actions.Action) {
			defer wg.Done()

			log := a.logger.WithField("action", action.Name())
			log.Info("Starting action")
			if err := action.Execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("Action failed")
				errChan <- fmt.Errorf("action %s failed: %w", action.Name(), err)
				return
			}
			log.Info("Action finished")
		}(action)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-ctx.Done():
		a.logger.Info("Context cancelled, stopping all actions")
		err = ctx.Err()
	case err = <-errChan:
		a.logger.WithError(err).Error("Action error occurred")
	case <-done:
		a.logger.Info("All actions finished")
		return nil
	}

	a.stopAllActions()
	<-done
	return err
}

// stopAllActions cleanly stops all registered actions
func (a *Agent) stopAllActions() {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, name := range a.order {
		a.logger.WithField("action", name).Info("Stopping action")
		a.actions[name].Stop()
	}
}
