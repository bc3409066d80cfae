package openai

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
)

// Supported providers
const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
)

// Config holds the language model client settings.
// Environment variables:
//   - AI_PROVIDER (azure or openai), AI_TEMPERATURE, AI_MAX_TOKENS
//   - azure: AZURE_OPENAI_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_VERSION, AZURE_DEPLOYMENT
//   - openai: AI_API_KEY, AI_BASE_URL, AI_MODEL
type Config struct {
	Provider    string
	APIKey      string
	BaseURL     string
	APIVersion  string
	Model       string
	Temperature float64
	MaxTokens   int
	Logger      *logrus.Logger
	// HTTPClient overrides the client used for API calls.
	HTTPClient *http.Client
}

// NewConfig creates a Config from environment variables
func NewConfig(logger *logrus.Logger) (*Config, error) {
	if err := env.Load(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := &Config{
		Provider:    strings.ToLower(env.String("AI_PROVIDER", ProviderAzure)),
		Temperature: env.Float("AI_TEMPERATURE", 0.7),
		MaxTokens:   env.Int("AI_MAX_TOKENS", 800),
		Logger:      logger,
	}

	switch config.Provider {
	case ProviderAzure:
		config.APIKey = env.String("AZURE_OPENAI_KEY", env.String("AI_API_KEY", ""))
		config.BaseURL = env.String("AZURE_OPENAI_ENDPOINT", "")
		config.APIVersion = env.String("AZURE_OPENAI_API_VERSION", "")
		config.Model = env.String("AZURE_DEPLOYMENT", "")
	default:
		config.APIKey = env.String("AI_API_KEY", "")
		config.BaseURL = env.String("AI_BASE_URL", "")
		config.Model = env.String("AI_MODEL", "gpt-4")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	switch c.Provider {
	case ProviderAzure:
		if c.BaseURL == "" {
			return fmt.Errorf("azure endpoint is required")
		}
		if c.Model == "" {
			return fmt.Errorf("azure deployment is required")
		}
	case ProviderOpenAI:
	default:
		return fmt.Errorf("unknown AI provider %q", c.Provider)
	}
	// Set default values if not provided
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 800
	}
	if c.Model == "" {
		c.Model = "gpt-4"
	}
	return nil
}
