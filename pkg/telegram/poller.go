package telegram

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// UpdatesAPI is the part of the bot client used for long polling.
type UpdatesAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UpdateHandler processes one update.
type UpdateHandler interface {
	ProcessUpdate(ctx context.Context, update tgbotapi.Update)
}

// Poller long-polls Telegram and hands every update to the handler in arrival order.
type Poller struct {
	api     UpdatesAPI
	handler UpdateHandler
	timeout int
	logger  *logrus.Logger

	done     chan struct{}
	stopOnce sync.Once
}

func NewPoller(api UpdatesAPI, handler UpdateHandler, config *Config) *Poller {
	return &Poller{
		api:     api,
		handler: handler,
		timeout: config.PollTimeout,
		logger:  config.Logger,
		done:    make(chan struct{}),
	}
}

// Name implements actions.Action.
func (p *Poller) Name() string {
	return "telegram_poller"
}

// Execute polls until ctx is done or Stop is called.
func (p *Poller) Execute(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.timeout
	u.AllowedUpdates = []string{"message"}

	updates := p.api.GetUpdatesChan(u)
	p.logger.WithField("timeout", p.timeout).Info("Polling for Telegram updates")

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return nil
		case <-p.done:
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			p.logger.WithField("update_id", update.UpdateID).Debug("Received update")
			p.handler.ProcessUpdate(ctx, update)
		}
	}
}

// Stop ends polling. It is safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		p.api.StopReceivingUpdates()
	})
}
