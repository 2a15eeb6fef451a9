package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/hitwire/packages/webclient"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config holds the hitwire configuration loaded from a config file
type Config struct {
	Timeout        int               `yaml:"timeout,omitempty"` // in milliseconds
	UserAgent      string            `yaml:"userAgent,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	MaxIdlePerHost int               `yaml:"maxIdlePerHost,omitempty"`
	ThrowOnError   *bool             `yaml:"throwOnError,omitempty"`
	ValidateSSL    *bool             `yaml:"validateSSL,omitempty"`
	RequestID      *bool             `yaml:"requestId,omitempty"`
	Drain          DrainConfig       `yaml:"drain,omitempty"`
	HistoryDB      string            `yaml:"historyDb,omitempty"`
	Concurrency    int               `yaml:"concurrency,omitempty"`
	Verbose        *bool             `yaml:"verbose,omitempty"`
	NoColor        *bool             `yaml:"noColor,omitempty"`
}

// DrainConfig mirrors webclient.DrainPolicy with a millisecond poll interval
type DrainConfig struct {
	MaxPollBytes   int64 `yaml:"maxPollBytes,omitempty"`
	PollAttempts   int   `yaml:"pollAttempts,omitempty"`
	PollIntervalMs int   `yaml:"pollIntervalMs,omitempty"`
}

// boolPtr returns a pointer to a bool value
func boolPtr(b bool) *bool {
	return &b
}

// BoolPtr returns a pointer to a bool value (exported for use by other packages)
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(ptr *bool, defaultVal bool) bool {
	if ptr == nil {
		return defaultVal
	}
	return *ptr
}

// GetThrowOnError returns whether 4xx/5xx responses fail the request (default: true)
func (c *Config) GetThrowOnError() bool {
	return getBool(c.ThrowOnError, true)
}

// GetValidateSSL returns whether TLS certificates are verified (default: true)
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetRequestID returns whether an X-Request-Id header is attached (default: false)
func (c *Config) GetRequestID() bool {
	return getBool(c.RequestID, false)
}

// GetVerbose returns the verbose setting (default: false)
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor returns the noColor setting (default: false)
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// DefaultHistoryDB is the exchange history database used when none is configured
const DefaultHistoryDB = ".hitwire/history.db"

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Timeout:      30000,
		UserAgent:    webclient.DefaultUserAgent,
		Headers:      make(map[string]string),
		ThrowOnError: boolPtr(true),
		ValidateSSL:  boolPtr(true),
		RequestID:    boolPtr(false),
		Drain: DrainConfig{
			MaxPollBytes:   webclient.DefaultDrainPolicy.MaxPollBytes,
			PollAttempts:   webclient.DefaultDrainPolicy.PollAttempts,
			PollIntervalMs: int(webclient.DefaultDrainPolicy.PollInterval / time.Millisecond),
		},
		HistoryDB:   DefaultHistoryDB,
		Concurrency: 10,
		Verbose:     boolPtr(false),
		NoColor:     boolPtr(false),
	}
}

// ConfigFilenames are the filenames searched for configuration, in order
var ConfigFilenames = []string{
	".hitwire.yaml",
	"hitwire.yaml",
	".hitwire.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return DefaultConfig(), nil
	}

	return FindAndLoadConfig(cwd)
}

// FindAndLoadConfig searches for a config file starting from the given directory
// and walking up to parent directories
func FindAndLoadConfig(startDir string) (*Config, error) {
	dir := startDir
	for {
		for _, filename := range ConfigFilenames {
			path := filepath.Join(dir, filename)
			if _, err := os.Stat(path); err == nil {
				return loadConfigFromFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return DefaultConfig(), nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// Merge merges another config into this one, with the other config taking precedence
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Timeout > 0 {
		c.Timeout = other.Timeout
	}
	if other.UserAgent != "" {
		c.UserAgent = other.UserAgent
	}
	if other.MaxIdlePerHost > 0 {
		c.MaxIdlePerHost = other.MaxIdlePerHost
	}
	if other.ThrowOnError != nil {
		c.ThrowOnError = other.ThrowOnError
	}
	if other.ValidateSSL != nil {
		c.ValidateSSL = other.ValidateSSL
	}
	if other.RequestID != nil {
		c.RequestID = other.RequestID
	}
	if other.Drain.MaxPollBytes > 0 {
		c.Drain.MaxPollBytes = other.Drain.MaxPollBytes
	}
	if other.Drain.PollAttempts > 0 {
		c.Drain.PollAttempts = other.Drain.PollAttempts
	}
	if other.Drain.PollIntervalMs > 0 {
		c.Drain.PollIntervalMs = other.Drain.PollIntervalMs
	}
	if other.HistoryDB != "" {
		c.HistoryDB = other.HistoryDB
	}
	if other.Concurrency > 0 {
		c.Concurrency = other.Concurrency
	}
	if other.Verbose != nil {
		c.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		c.NoColor = other.NoColor
	}

	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	for k, v := range other.Headers {
		c.Headers[k] = v
	}
}

// SaveConfig writes the config to a file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// TimeoutDuration returns the request timeout as a time.Duration
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// DrainPolicy converts the drain section into a webclient.DrainPolicy
func (c *Config) DrainPolicy() webclient.DrainPolicy {
	return webclient.DrainPolicy{
		MaxPollBytes: c.Drain.MaxPollBytes,
		PollAttempts: c.Drain.PollAttempts,
		PollInterval: time.Duration(c.Drain.PollIntervalMs) * time.Millisecond,
	}
}

// ClientOptions converts the config into options for webclient.NewClient
func (c *Config) ClientOptions(logger *zap.Logger) []webclient.ClientOption {
	opts := []webclient.ClientOption{
		webclient.WithThrowOnError(c.GetThrowOnError()),
		webclient.WithValidateSSL(c.GetValidateSSL()),
		webclient.WithRequestID(c.GetRequestID()),
		webclient.WithDrainPolicy(c.DrainPolicy()),
	}
	if c.Timeout > 0 {
		opts = append(opts, webclient.WithTimeout(c.TimeoutDuration()))
	}
	if c.UserAgent != "" {
		opts = append(opts, webclient.WithUserAgent(c.UserAgent))
	}
	if len(c.Headers) > 0 {
		opts = append(opts, webclient.WithDefaultHeaders(c.Headers))
	}
	if c.MaxIdlePerHost > 0 {
		opts = append(opts, webclient.WithMaxIdlePerHost(c.MaxIdlePerHost))
	}
	if logger != nil {
		opts = append(opts, webclient.WithLogger(logger))
	}
	return opts
}
