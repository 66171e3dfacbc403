// Package config loads meshbridge configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration errors.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the meshbridge configuration.
type Config struct {
	Supervisor Supervisor `yaml:"supervisor"`
	Gateway    Gateway    `yaml:"gateway"`
	Session    Session    `yaml:"session"`
	Logging    Logging    `yaml:"logging"`
	Journal    Journal    `yaml:"journal"`
}

// Supervisor configures the reconnect policy.
type Supervisor struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	ResultWait  time.Duration `yaml:"result_wait"`
}

// Gateway configures how the mesh-proxy gateway is reached.
type Gateway struct {
	// Address is a host:port. Empty means discover via mDNS.
	Address string `yaml:"address"`

	Service       string        `yaml:"service"`
	Domain        string        `yaml:"domain"`
	Instance      string        `yaml:"instance"`
	BrowseTimeout time.Duration `yaml:"browse_timeout"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`

	Breaker Breaker `yaml:"breaker"`
}

// Breaker configures the gateway dial circuit breaker.
type Breaker struct {
	// Failures is the number of consecutive dial failures that open the breaker.
	Failures    uint32        `yaml:"failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Session configures session open and close.
type Session struct {
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectDelay   time.Duration `yaml:"connect_delay"`
	CloseTimeout   time.Duration `yaml:"close_timeout"`
}

// Logging configures operational logging.
type Logging struct {
	Level string `yaml:"level"`
}

// Journal configures the event journal.
type Journal struct {
	// Path of the journal file. Empty disables the file journal.
	Path string `yaml:"path"`

	// Console also writes journal events to the operational log.
	Console bool `yaml:"console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Supervisor: Supervisor{
			MaxAttempts: 5,
			BaseDelay:   2 * time.Second,
			ResultWait:  5 * time.Second,
		},
		Gateway: Gateway{
			Service:       "_meshproxy._tcp",
			Domain:        "local",
			BrowseTimeout: 3 * time.Second,
			DialTimeout:   5 * time.Second,
			Breaker: Breaker{
				Failures:    3,
				OpenTimeout: 30 * time.Second,
			},
		},
		Session: Session{
			ConnectRetries: 3,
			ConnectDelay:   1 * time.Second,
			CloseTimeout:   10 * time.Second,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads the configuration from the given YAML file path on top of the
// defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates the result.
// Fields absent from data keep their current value.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Supervisor.MaxAttempts < 1 {
		problems = append(problems, "supervisor.max_attempts must be at least 1")
	}
	if c.Supervisor.BaseDelay <= 0 {
		problems = append(problems, "supervisor.base_delay must be positive")
	}
	if c.Supervisor.ResultWait <= 0 {
		problems = append(problems, "supervisor.result_wait must be positive")
	}
	if c.Gateway.Address == "" && c.Gateway.Service == "" {
		problems = append(problems, "gateway needs an address or a discovery service")
	}
	if c.Gateway.DialTimeout <= 0 {
		problems = append(problems, "gateway.dial_timeout must be positive")
	}
	if c.Gateway.Breaker.Failures == 0 {
		problems = append(problems, "gateway.breaker.failures must be at least 1")
	}
	if c.Session.ConnectRetries < 1 {
		problems = append(problems, "session.connect_retries must be at least 1")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
