package telegram

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
)

const (
	// DefaultMaxTweets caps the count a chat may ask for in one request
	DefaultMaxTweets = 21

	// DefaultRatePerSecond bounds outbound messages across all chats
	DefaultRatePerSecond = 20

	// DefaultPollTimeout is the long polling timeout in seconds
	DefaultPollTimeout = 30

	// MaxMessageLength is the longest text Telegram accepts in one message
	MaxMessageLength = 4096
)

// Config holds the bot settings.
// Environment variables:
//   - TELEGRAM_TOKEN, TELEGRAM_MAX_TWEETS, TELEGRAM_RATE_PER_SECOND, TELEGRAM_POLL_TIMEOUT
type Config struct {
	Token         string
	MaxTweets     int
	RatePerSecond float64
	PollTimeout   int
	Logger        *logrus.Logger
}

func NewConfig(logger *logrus.Logger) (*Config, error) {
	config := &Config{
		Token:         env.String("TELEGRAM_TOKEN", ""),
		MaxTweets:     env.Int("TELEGRAM_MAX_TWEETS", DefaultMaxTweets),
		RatePerSecond: env.Float("TELEGRAM_RATE_PER_SECOND", DefaultRatePerSecond),
		PollTimeout:   env.Int("TELEGRAM_POLL_TIMEOUT", DefaultPollTimeout),
		Logger:        logger,
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.MaxTweets <= 0 {
		c.MaxTweets = DefaultMaxTweets
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	return nil
}
