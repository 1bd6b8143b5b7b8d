package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jpalmerr/hubbub"
)

// BuildOptions converts parsed configuration into publisher options.
//
// The logger is not part of the result; callers add [hubbub.WithLogger]
// with a logger from [NewLogger] or their own.
func BuildOptions(cfg *Config) ([]hubbub.Option, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	opts := []hubbub.Option{
		hubbub.WithFeedURL(cfg.FeedURL),
		hubbub.WithFatalFetchErrors(cfg.FatalFetchErrors),
	}

	if cfg.Timeout != 0 {
		opts = append(opts, hubbub.WithTimeout(cfg.Timeout.Duration()))
	}
	if cfg.DefaultPollInterval != 0 {
		opts = append(opts, hubbub.WithDefaultPollInterval(cfg.DefaultPollInterval.Duration()))
	}
	if cfg.MinEventDelay != 0 {
		opts = append(opts, hubbub.WithMinEventDelay(cfg.MinEventDelay.Duration()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, hubbub.WithHeaders(cfg.Headers))
	}

	return opts, nil
}

// ConsoleKinds returns the parsed console_kinds filter.
func ConsoleKinds(cfg *Config) ([]hubbub.Kind, error) {
	kinds := make([]hubbub.Kind, 0, len(cfg.ConsoleKinds))
	for i, name := range cfg.ConsoleKinds {
		k, err := hubbub.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("console_kinds[%d]: %w", i, err)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// NewLogger creates a logger writing to w with the configured level and
// format.
func NewLogger(cfg *Config, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.LogFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log_format must be json or text, got %q", cfg.LogFormat)
	}
}
