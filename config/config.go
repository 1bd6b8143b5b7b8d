// Package config provides YAML configuration parsing for hubbub.
//
// This package enables running hubbub as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	feed_url: https://api.github.com/events
//	timeout: 10s
//	default_poll_interval: 60s
//	headers:
//	  Authorization: Bearer ${GITHUB_TOKEN}
//
//	port: 8080
//	console: true
//	console_kinds: [PushEvent, ReleaseEvent]
//
//	log_level: info
//	log_format: json
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/hubbub"
)

const (
	// minPollInterval is the smallest default_poll_interval accepted. The
	// feed's own X-Poll-Interval always takes precedence at runtime.
	minPollInterval = 1 * time.Second

	// DefaultPort is the HTTP port used when the config does not set one.
	DefaultPort = 8080

	defaultTimeout   = 10 * time.Second
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
)

// Config is the root configuration structure for hubbub.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] for a
// config with every default applied.
type Config struct {
	// FeedURL is the polled events feed.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	// Defaults to the public GitHub events API.
	FeedURL string `yaml:"feed_url"`

	// Timeout bounds each feed request. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// DefaultPollInterval is used when the feed sends no X-Poll-Interval.
	// Defaults to 60s.
	DefaultPollInterval Duration `yaml:"default_poll_interval"`

	// MinEventDelay is the smallest pause between two events. Defaults to 0.
	MinEventDelay Duration `yaml:"min_event_delay"`

	// FatalFetchErrors stops the publisher on the first failed fetch
	// instead of retrying.
	FatalFetchErrors bool `yaml:"fatal_fetch_errors"`

	// Headers are sent with every feed request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Port is the HTTP server port. Defaults to 8080; 0 disables the
	// HTTP surface.
	Port *int `yaml:"port"`

	// Console prints each event to stdout.
	Console bool `yaml:"console"`

	// ConsoleKinds restricts console output to these event kinds.
	// Empty means all kinds.
	ConsoleKinds []string `yaml:"console_kinds"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// LogFormat is json or text. Defaults to json.
	LogFormat string `yaml:"log_format"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		value, ok := os.LookupEnv(name)
		switch {
		case ok:
			return value
		case hasDefault:
			return sub[3]
		default:
			firstErr = fmt.Errorf("environment variable %q is not set", name)
			return match
		}
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in feed_url and header values.
// Unknown keys are rejected so that typos surface early.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.expandEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated config with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.FeedURL == "" {
		c.FeedURL = hubbub.DefaultFeedURL
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(defaultTimeout)
	}
	if c.DefaultPollInterval == 0 {
		c.DefaultPollInterval = Duration(hubbub.DefaultPollInterval)
	}
	if c.Port == nil {
		port := DefaultPort
		c.Port = &port
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
}

// ListenPort returns the HTTP port, or 0 if the HTTP surface is disabled.
func (c *Config) ListenPort() int {
	if c.Port == nil {
		return DefaultPort
	}
	return *c.Port
}

// SetPort overrides the configured HTTP port.
func (c *Config) SetPort(port int) {
	c.Port = &port
}

// expandEnv expands environment variables in feed_url and header values.
// It runs once, in [Parse], so expanded values are never expanded again.
func (c *Config) expandEnv() error {
	expanded, err := expandEnvVars(c.FeedURL)
	if err != nil {
		return fmt.Errorf("feed_url: %w", err)
	}
	c.FeedURL = expanded

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}
	return nil
}

// Validate checks the config without modifying it. [Parse] calls it after
// expanding environment variables; call it again after changing fields.
func (c *Config) Validate() error {
	u, err := url.Parse(c.FeedURL)
	if err != nil {
		return fmt.Errorf("feed_url: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("feed_url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("feed_url: missing host")
	}

	for k := range c.Headers {
		if strings.TrimSpace(k) == "" {
			return errors.New("headers: header name cannot be empty")
		}
	}

	if c.Timeout.Duration() <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout.Duration())
	}
	if c.DefaultPollInterval.Duration() < minPollInterval {
		return fmt.Errorf("default_poll_interval must be at least %s, got %s",
			minPollInterval, c.DefaultPollInterval.Duration())
	}
	if c.MinEventDelay.Duration() < 0 {
		return fmt.Errorf("min_event_delay cannot be negative, got %s", c.MinEventDelay.Duration())
	}
	if c.MinEventDelay.Duration() > c.DefaultPollInterval.Duration() {
		return fmt.Errorf("min_event_delay (%s) must not exceed default_poll_interval (%s)",
			c.MinEventDelay.Duration(), c.DefaultPollInterval.Duration())
	}

	port := c.ListenPort()
	if port < 0 || port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", port)
	}

	for i, name := range c.ConsoleKinds {
		if _, err := hubbub.ParseKind(name); err != nil {
			return fmt.Errorf("console_kinds[%d]: %w", i, err)
		}
	}
	if len(c.ConsoleKinds) > 0 && !c.Console {
		return errors.New("console_kinds requires console: true")
	}

	if port == 0 && !c.Console {
		return errors.New("nothing to publish to: enable console or set a non-zero port")
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}

	return nil
}

// ParseLevel maps a log_level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log_level must be debug, info, warn or error, got %q", s)
	}
}
