// Package agentconfig assembles the long-running actions of the digest bot.
package agentconfig

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lisanmuaddib/tweet-digest/pkg/actions"
	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/jobs"
	"github.com/lisanmuaddib/tweet-digest/pkg/scheduler"
	"github.com/lisanmuaddib/tweet-digest/pkg/store"
	"github.com/lisanmuaddib/tweet-digest/pkg/telegram"
)

// BotAPI is the Telegram client used by the poller and the sender.
type BotAPI interface {
	telegram.API
	telegram.UpdatesAPI
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

type ActionConfig struct {
	DB         *gorm.DB
	BotAPI     BotAPI
	Retriever  digest.Retriever
	Summarizer digest.Summarizer
	Telegram   *telegram.Config
	Jobs       *jobs.Config
	Scheduler  *scheduler.Config
	Logger     *logrus.Logger
}

// ConfigureActions sets up all agent actions: the job dispatcher, the task scheduler and the
// Telegram poller. Scheduler may carry only a timezone; its collaborators are filled in here.
func ConfigureActions(config ActionConfig) ([]actions.Action, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	dispatcher := jobs.NewDispatcher(config.Jobs)

	tasks, err := store.NewTaskStore(config.Logger, config.DB)
	if err != nil {
		return nil, err
	}

	sender := telegram.NewSender(config.BotAPI, config.Telegram.RatePerSecond, config.Logger)

	runner, err := digest.NewRunner(digest.Config{
		Retriever:  config.Retriever,
		Summarizer: config.Summarizer,
		Sender:     sender,
		Logger:     config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create digest runner: %w", err)
	}

	schedConfig := config.Scheduler
	if schedConfig == nil {
		schedConfig = &scheduler.Config{}
	}
	schedConfig.Store = tasks
	schedConfig.Jobs = dispatcher
	schedConfig.Digest = runner
	schedConfig.Logger = config.Logger
	sched, err := scheduler.New(schedConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	bot, err := telegram.NewBot(telegram.BotConfig{
		Sender:    sender,
		Scheduler: sched,
		Jobs:      dispatcher,
		Digest:    runner,
		MaxTweets: config.Telegram.MaxTweets,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	poller := telegram.NewPoller(config.BotAPI, bot, config.Telegram)

	return []actions.Action{dispatcher, sched, poller}, nil
}
