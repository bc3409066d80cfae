// Package cli provides the command-line interface for digestbot.
package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
	"github.com/lisanmuaddib/tweet-digest/pkg/llm/openai"
	"github.com/lisanmuaddib/tweet-digest/pkg/logging"
	"github.com/lisanmuaddib/tweet-digest/pkg/nitter"
	"github.com/lisanmuaddib/tweet-digest/pkg/summarize"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	logLevel  string
	logFormat string
	log       *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:           "digestbot",
	Short:         "Telegram bot that digests a profile's recent posts through nitter mirrors",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := env.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
		log = logging.NewLogger(
			flagOrEnv(cmd, "log-level", logLevel, "LOG_LEVEL"),
			flagOrEnv(cmd, "log-format", logFormat, "LOG_FORMAT"),
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: color, json (overrides LOG_FORMAT)")
}

// ExecuteContext runs the root command with ctx available to every subcommand.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func flagOrEnv(cmd *cobra.Command, flag, value, key string) string {
	if f := cmd.Flag(flag); f != nil && f.Changed {
		return value
	}
	return env.String(key, "")
}

func newNitterClient() (*nitter.Client, error) {
	config, err := nitter.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("nitter config: %w", err)
	}
	config.Logger = log
	return nitter.NewClient(config), nil
}

// newSummarizer builds the summarizer from env. A non-empty model overrides the configured one.
func newSummarizer(model string) (*summarize.Summarizer, error) {
	config, err := openai.NewConfig(log)
	if err != nil {
		return nil, fmt.Errorf("language model config: %w", err)
	}
	client, err := openai.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("language model client: %w", err)
	}
	return summarize.NewSummarizer(summarize.Config{
		LLM:         client,
		Logger:      log,
		Temperature: config.Temperature,
		MaxTokens:   config.MaxTokens,
		Model:       model,
	})
}
