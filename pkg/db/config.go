package db

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
)

// DefaultDatabaseURL is the sqlite file used when nothing else is configured
const DefaultDatabaseURL = "twitter_monitor.db"

// Driver names
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds the database settings.
// Environment variables:
//   - DATABASE_URL: postgres://… selects postgres, anything else is a sqlite path
//   - DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME: postgres parts used when DATABASE_URL is unset
type Config struct {
	URL    string
	Logger *logrus.Logger
}

// NewConfig reads the database configuration from the environment
func NewConfig(logger *logrus.Logger) (*Config, error) {
	config := &Config{
		URL:    env.String("DATABASE_URL", ""),
		Logger: logger,
	}
	if config.URL == "" && os.Getenv("DB_HOST") != "" {
		config.URL = constructDBURL()
	}
	if config.URL == "" {
		config.URL = DefaultDatabaseURL
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if c.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	return nil
}

// Driver reports which database the URL points at
func (c *Config) Driver() string {
	if strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://") {
		return DriverPostgres
	}
	return DriverSQLite
}

// sqlitePath strips the sqlite:/// prefix some tools put on file paths
func (c *Config) sqlitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite:///")
}

// constructDBURL creates the database URL from environment variables
func constructDBURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"),
		env.String("DB_PORT", "5432"),
		os.Getenv("DB_NAME"),
	)
}
