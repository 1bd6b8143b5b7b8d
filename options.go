package hubbub

import (
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// publisherConfig holds mutable state during Publisher construction.
type publisherConfig struct {
	feedURL         string
	timeout         time.Duration
	defaultInterval time.Duration
	minEventDelay   time.Duration
	headers         map[string]string
	httpClient      *http.Client
	fatalFetch      bool
	logger          *slog.Logger
	errorHandler    func(error)
}

// Option is a function that configures a [Publisher] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
//
// Built-in options: [WithFeedURL], [WithTimeout], [WithDefaultPollInterval],
// [WithMinEventDelay], [WithHeader], [WithHeaders], [WithHTTPClient],
// [WithFatalFetchErrors], [WithLogger], [WithErrorHandler].
type Option func(*publisherConfig) error

// WithFeedURL sets the URL of the event feed to poll.
//
// Defaults to the public GitHub events API. The URL must be absolute and
// use http or https; [New] rejects anything else.
//
// Example:
//
//	p, err := hubbub.New(
//	    hubbub.WithFeedURL("https://api.github.com/repos/golang/go/events"),
//	)
func WithFeedURL(u string) Option {
	return func(cfg *publisherConfig) error {
		if u == "" {
			return errors.New("feed URL cannot be empty")
		}
		cfg.feedURL = u
		return nil
	}
}

// WithTimeout sets the timeout of each feed request.
//
// Defaults to 10 seconds. Returns an error if the duration is zero or
// negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *publisherConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithDefaultPollInterval sets the interval used when the feed does not
// advertise one in its X-Poll-Interval header.
//
// Defaults to 60 seconds. An advertised interval always takes precedence.
// Returns an error if the duration is zero or negative.
func WithDefaultPollInterval(d time.Duration) Option {
	return func(cfg *publisherConfig) error {
		if d <= 0 {
			return errors.New("default poll interval must be positive")
		}
		cfg.defaultInterval = d
		return nil
	}
}

// WithMinEventDelay sets a floor for the pause between two events.
//
// Without a floor, a large batch over a short interval produces very short
// pauses. With a floor, a batch may take longer than one interval to
// deliver; the next fetch then happens as soon as the batch is done.
// Zero (the default) disables the floor. Returns an error if negative.
func WithMinEventDelay(d time.Duration) Option {
	return func(cfg *publisherConfig) error {
		if d < 0 {
			return errors.New("min event delay cannot be negative")
		}
		cfg.minEventDelay = d
		return nil
	}
}

// WithHeader sets a single request header sent with every fetch.
//
// Can be called multiple times. Later calls with the same key replace
// earlier ones, including the defaults.
//
// Example:
//
//	p, err := hubbub.New(
//	    hubbub.WithHeader("Authorization", "Bearer "+os.Getenv("GITHUB_TOKEN")),
//	)
func WithHeader(key, value string) Option {
	return func(cfg *publisherConfig) error {
		if key == "" {
			return errors.New("header key cannot be empty")
		}
		cfg.headers[http.CanonicalHeaderKey(key)] = value
		return nil
	}
}

// WithHeaders sets several request headers at once.
//
// Equivalent to calling [WithHeader] for each entry. The map is copied.
func WithHeaders(headers map[string]string) Option {
	return func(cfg *publisherConfig) error {
		for k, v := range headers {
			if k == "" {
				return errors.New("header key cannot be empty")
			}
			cfg.headers[http.CanonicalHeaderKey(k)] = v
		}
		return nil
	}
}

// WithHTTPClient sets the HTTP client used to fetch the feed.
//
// Useful for custom transports (proxies, TLS settings, recording in tests).
// The client's own Timeout is honoured in addition to [WithTimeout].
// Returns an error if the client is nil.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *publisherConfig) error {
		if c == nil {
			return errors.New("http client cannot be nil")
		}
		cfg.httpClient = c
		return nil
	}
}

// WithFatalFetchErrors makes a failed fetch end [Publisher.Run] with a
// [*FetchError] instead of waiting one interval and retrying.
//
// Disabled by default.
func WithFatalFetchErrors(enabled bool) Option {
	return func(cfg *publisherConfig) error {
		cfg.fatalFetch = enabled
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the Publisher.
//
// This allows SDK consumers to control where logs are written and in what
// format. If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *publisherConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithErrorHandler registers a function receiving every reported failure.
//
// The handler receives [*FetchError], [*DecodeError] and [*SubscriberError]
// values; use errors.Is with the package sentinels to classify them. It is
// called from the poll loop or from a subscriber's delivery goroutine and
// must not block. Panics within the handler are recovered and logged.
//
// Example:
//
//	p, err := hubbub.New(
//	    hubbub.WithErrorHandler(func(err error) {
//	        if errors.Is(err, hubbub.ErrFetchFailed) {
//	            alerts.Inc()
//	        }
//	    }),
//	)
//
// A nil handler is silently ignored.
func WithErrorHandler(fn func(error)) Option {
	return func(cfg *publisherConfig) error {
		if fn == nil {
			return nil
		}
		cfg.errorHandler = fn
		return nil
	}
}
