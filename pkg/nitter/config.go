package nitter

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/lisanmuaddib/tweet-digest/internal/env"
)

// Default configuration values
const (
	DefaultFetchTimeout     = 10 * time.Second
	DefaultMaxRedirects     = 3
	DefaultDelayMin         = 2 * time.Second
	DefaultDelayMax         = 5 * time.Second
	DefaultRetrievalBudget  = 60 * time.Second
	DefaultMirrorTTL        = 10 * time.Minute
	DefaultDiscoveryTimeout = 10 * time.Second
	DefaultMaxBodyBytes     = 5 << 20
)

// DefaultMirrors are the known-stable mirrors used when discovery finds nothing.
var DefaultMirrors = []string{
	"https://nitter.net",
	"https://nitter.privacydev.net",
	"https://nitter.1d4.us",
	"https://nitter.moomoo.me",
	"https://nitter.weiler.rocks",
}

// DefaultSources are the discovery sources, structured listings first.
var DefaultSources = []SourceSpec{
	{URL: "https://raw.githubusercontent.com/zedeus/nitter/master/nitter.json", Format: FormatJSON},
	{URL: "https://raw.githubusercontent.com/zedeus/nitter/master/instances.json", Format: FormatJSON},
	{URL: "https://github.com/zedeus/nitter/wiki/Instances", Format: FormatHTML},
}

// SourceFormat tells the directory how to read a discovery source.
type SourceFormat string

const (
	FormatJSON SourceFormat = "json"
	FormatHTML SourceFormat = "html"
)

// SourceSpec configures one mirror discovery source.
type SourceSpec struct {
	URL    string       `yaml:"url"`
	Format SourceFormat `yaml:"format"`
}

// Config holds the scraper configuration.
// Environment variables:
//   - NITTER_FETCH_TIMEOUT, NITTER_MAX_REDIRECTS, NITTER_DELAY_MIN, NITTER_DELAY_MAX,
//     NITTER_PER_REQUEST_DELAY, NITTER_RETRIEVAL_BUDGET, NITTER_MIRROR_TTL,
//     NITTER_DISCOVERY_TIMEOUT, NITTER_BLACKLIST, NITTER_CONFIG_FILE, DEBUG_CRAWLER, NITTER_DUMP_DIR
type Config struct {
	DefaultMirrors   []string      `yaml:"default_mirrors"`
	Blacklist        []string      `yaml:"blacklist"`
	Sources          []SourceSpec  `yaml:"discovery_sources"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	MirrorTTL        time.Duration `yaml:"mirror_ttl"`

	FetchTimeout    time.Duration `yaml:"fetch_timeout"`
	MaxRedirects    int           `yaml:"max_redirects"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	DelayMin        time.Duration `yaml:"delay_min"`
	DelayMax        time.Duration `yaml:"delay_max"`
	PerRequestDelay bool          `yaml:"per_request_delay"`

	RetrievalBudget time.Duration `yaml:"retrieval_budget"`

	// Debug enables page dumps into DumpDir.
	Debug   bool   `yaml:"debug"`
	DumpDir string `yaml:"dump_dir"`

	Logger *logrus.Logger `yaml:"-"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		DefaultMirrors:   append([]string(nil), DefaultMirrors...),
		Sources:          append([]SourceSpec(nil), DefaultSources...),
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		MirrorTTL:        DefaultMirrorTTL,
		FetchTimeout:     DefaultFetchTimeout,
		MaxRedirects:     DefaultMaxRedirects,
		MaxBodyBytes:     DefaultMaxBodyBytes,
		DelayMin:         DefaultDelayMin,
		DelayMax:         DefaultDelayMax,
		PerRequestDelay:  false,
		RetrievalBudget:  DefaultRetrievalBudget,
		Logger:           logrus.New(),
	}
}

// NewConfig builds the configuration from defaults, the optional YAML file named
// by NITTER_CONFIG_FILE and environment variables, in that order of precedence.
func NewConfig() (*Config, error) {
	if err := env.Load(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	config := DefaultConfig()

	if path := env.String("NITTER_CONFIG_FILE", ""); path != "" {
		if err := config.LoadFile(path); err != nil {
			return nil, err
		}
	}

	config.FetchTimeout = env.Duration("NITTER_FETCH_TIMEOUT", config.FetchTimeout)
	config.MaxRedirects = env.Int("NITTER_MAX_REDIRECTS", config.MaxRedirects)
	config.DelayMin = env.Duration("NITTER_DELAY_MIN", config.DelayMin)
	config.DelayMax = env.Duration("NITTER_DELAY_MAX", config.DelayMax)
	config.PerRequestDelay = env.Bool("NITTER_PER_REQUEST_DELAY", config.PerRequestDelay)
	config.RetrievalBudget = env.Duration("NITTER_RETRIEVAL_BUDGET", config.RetrievalBudget)
	config.MirrorTTL = env.Duration("NITTER_MIRROR_TTL", config.MirrorTTL)
	config.DiscoveryTimeout = env.Duration("NITTER_DISCOVERY_TIMEOUT", config.DiscoveryTimeout)
	config.Blacklist = append(config.Blacklist, env.List("NITTER_BLACKLIST")...)
	config.Debug = env.Bool("DEBUG_CRAWLER", config.Debug)
	config.DumpDir = env.String("NITTER_DUMP_DIR", config.DumpDir)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.Logger.WithFields(logrus.Fields{
		"default_mirrors":   len(config.DefaultMirrors),
		"discovery_sources": len(config.Sources),
		"blacklist":         config.Blacklist,
		"fetch_timeout":     config.FetchTimeout.String(),
		"retrieval_budget":  config.RetrievalBudget.String(),
	}).Debug("Nitter config initialized")

	return config, nil
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading nitter config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing nitter config: %w", err)
	}
	return nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.Logger == nil {
		return fmt.Errorf("logger is required")
	}
	if len(c.DefaultMirrors) == 0 {
		return fmt.Errorf("at least one default mirror is required")
	}
	for _, m := range c.DefaultMirrors {
		if _, ok := NormalizeOrigin(m); !ok {
			return fmt.Errorf("default mirror %q is not an https origin", m)
		}
	}
	for _, s := range c.Sources {
		if s.Format != FormatJSON && s.Format != FormatHTML {
			return fmt.Errorf("discovery source %q has unknown format %q", s.URL, s.Format)
		}
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects cannot be negative")
	}
	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
	return nil
}
