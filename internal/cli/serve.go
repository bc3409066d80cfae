package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/tweet-digest/internal/agentconfig"
	"github.com/lisanmuaddib/tweet-digest/pkg/agent"
	"github.com/lisanmuaddib/tweet-digest/pkg/db"
	"github.com/lisanmuaddib/tweet-digest/pkg/digest"
	"github.com/lisanmuaddib/tweet-digest/pkg/jobs"
	"github.com/lisanmuaddib/tweet-digest/pkg/scheduler"
	"github.com/lisanmuaddib/tweet-digest/pkg/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot with its scheduler and workers",
	Args:  cobra.NoArgs,
	RunE:  serveAction,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveAction(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	telegramConfig, err := telegram.NewConfig(log)
	if err != nil {
		return fmt.Errorf("telegram config: %w", err)
	}
	jobsConfig, err := jobs.NewConfig(log)
	if err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}
	schedConfig, err := scheduler.NewConfig(log)
	if err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}
	dbConfig, err := db.NewConfig(log)
	if err != nil {
		return fmt.Errorf("database config: %w", err)
	}

	database, err := db.SetupDatabase(dbConfig)
	if err != nil {
		return err
	}
	defer db.Close(database)

	client, err := newNitterClient()
	if err != nil {
		return err
	}
	defer client.Close()

	var summarizer digest.Summarizer
	if s, err := newSummarizer(""); err != nil {
		log.WithError(err).Warn("AI summaries disabled")
	} else {
		summarizer = s
	}

	api, err := tgbotapi.NewBotAPI(telegramConfig.Token)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	log.WithField("bot", api.Self.UserName).Info("Authorized on Telegram")

	actions, err := agentconfig.ConfigureActions(agentconfig.ActionConfig{
		DB:         database,
		BotAPI:     api,
		Retriever:  client,
		Summarizer: summarizer,
		Telegram:   telegramConfig,
		Jobs:       jobsConfig,
		Scheduler:  schedConfig,
		Logger:     log,
	})
	if err != nil {
		return fmt.Errorf("failed to configure actions: %w", err)
	}

	bot := agent.New(agent.Config{Logger: log})
	for _, action := range actions {
		if err := bot.RegisterAction(action); err != nil {
			return fmt.Errorf("failed to register action: %w", err)
		}
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			log.WithField("signal", sig.String()).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	log.WithFields(logrus.Fields{
		"actions":    len(actions),
		"max_tweets": telegramConfig.MaxTweets,
	}).Info("Starting digest bot")

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped with error: %w", err)
	}

	log.Info("Digest bot shutdown complete")
	return nil
}
