// Package logging builds the process logger.
package logging

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

const (
	FormatJSON  = "json"
	FormatColor = "color"
)

// NewLogger returns a logger at level using format. An unknown level falls back to info
// and is reported on the new logger.
func NewLogger(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		formatter := NewColoredFormatter()
		formatter.DisableColors = !isatty.IsTerminal(os.Stderr.Fd())
		log.SetFormatter(formatter)
	}

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		if level != "" {
			log.WithFields(logrus.Fields{
				"attempted_level": level,
				"default_level":   "INFO",
			}).Warn("Invalid log level specified, defaulting to INFO")
		}
		return log
	}
	log.SetLevel(parsed)
	return log
}

// NewLoggerFromEnv reads LOG_LEVEL and LOG_FORMAT.
func NewLoggerFromEnv() *logrus.Logger {
	return NewLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}
