package hubbub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/hubbub/internal/fanout"
	"github.com/jpalmerr/hubbub/internal/metrics"
	"github.com/jpalmerr/hubbub/internal/poller"
	"github.com/jpalmerr/hubbub/internal/store"
)

const (
	// DefaultFeedURL is the public GitHub events API.
	DefaultFeedURL = "https://api.github.com/events"

	// DefaultPollInterval is used when the feed does not advertise an interval.
	DefaultPollInterval = poller.DefaultPollInterval

	defaultTimeout   = 10 * time.Second
	closeTimeout     = 5 * time.Second
	defaultUserAgent = "hubbub"
	defaultAccept    = "application/vnd.github+json"
)

// Publisher turns a polled event feed into a paced stream of [Event] values.
//
// Publisher fetches a batch of records from the feed, decodes each one and
// delivers it to every registered [Subscriber], pausing between events so
// that one batch is spread evenly over the polling interval the feed
// advertises. Consumers see a steady trickle rather than a burst per poll.
//
// The typical lifecycle is:
//
//	p, err := hubbub.New(hubbub.WithLogger(logger))
//	if err != nil {
//	    slog.Error("failed to create publisher", "error", err)
//	    os.Exit(1)
//	}
//	defer p.Close()
//
//	p.Subscribe(hubbub.NewConsoleSubscriber(os.Stdout))
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	p.Run(ctx) // blocks until context cancelled
//
// Subscribe and Unsubscribe are safe to call at any time, including while a
// batch is being delivered.
type Publisher struct {
	feedURL      string
	scheduler    *poller.Scheduler
	hub          *fanout.Hub[Event]
	latest       *store.MemoryStore[Event]
	metrics      *metrics.Metrics
	logger       *slog.Logger
	errorHandler func(error)
	fatalFetch   bool

	closeOnce sync.Once
	closed    atomic.Bool

	cycles             atomic.Uint64
	eventsDecoded      atomic.Uint64
	eventsDelivered    atomic.Uint64
	decodeFailures     atomic.Uint64
	fetchFailures      atomic.Uint64
	subscriberFailures atomic.Uint64

	mu           sync.RWMutex
	lastFetchAt  time.Time
	pollInterval time.Duration
	eventDelay   time.Duration
}

// New creates a new [Publisher] with the given options.
//
// Options have sensible defaults:
//   - Feed URL: https://api.github.com/events
//   - Request timeout: 10 seconds
//   - Default poll interval: 60 seconds (used when the feed sends none)
//   - Headers: User-Agent "hubbub", Accept "application/vnd.github+json"
//
// Returns an error if any option is invalid or the feed URL is not an
// absolute http(s) URL. New does not contact the feed.
func New(opts ...Option) (*Publisher, error) {
	cfg := &publisherConfig{
		feedURL:         DefaultFeedURL,
		timeout:         defaultTimeout,
		defaultInterval: DefaultPollInterval,
		headers: map[string]string{
			"User-Agent": defaultUserAgent,
			"Accept":     defaultAccept,
		},
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if err := validateFeedURL(cfg.feedURL); err != nil {
		return nil, err
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		feedURL:      cfg.feedURL,
		hub:          fanout.New[Event](),
		latest:       store.NewMemoryStore[Event](),
		logger:       logger,
		errorHandler: cfg.errorHandler,
		fatalFetch:   cfg.fatalFetch,
	}

	m, err := metrics.New(p.hub.Len, p.hub.Backlog)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	p.metrics = m

	p.scheduler = poller.NewScheduler(
		poller.Config{
			URL:             cfg.feedURL,
			Headers:         cfg.headers,
			Timeout:         cfg.timeout,
			DefaultInterval: cfg.defaultInterval,
			MinEventDelay:   cfg.minEventDelay,
		},
		poller.NewClient(cfg.httpClient),
		p.handleRecord,
		observer{p},
	)

	return p, nil
}

func validateFeedURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid feed URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid feed URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid feed URL %q: missing host", raw)
	}
	return nil
}

// FeedURL returns the URL of the polled feed.
func (p *Publisher) FeedURL() string {
	return p.feedURL
}

// Subscribe registers sub to receive every event published from now on.
//
// Each subscription gets its own delivery goroutine and unbounded queue, so
// a slow subscriber delays nobody else and misses nothing. The same
// Subscriber value may be registered more than once; each registration is a
// separate [Subscription].
//
// Returns an error if sub is nil or the publisher is closed.
func (p *Publisher) Subscribe(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return Subscription{}, errors.New("subscriber cannot be nil")
	}

	id := uuid.NewString()
	err := p.hub.Add(id, func(e Event) {
		p.deliver(id, sub, e)
	})
	if errors.Is(err, fanout.ErrClosed) {
		return Subscription{}, ErrClosed
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("subscribe: %w", err)
	}

	p.logger.Debug("subscriber added", "subscription_id", id)
	return Subscription{id: id}, nil
}

// Unsubscribe removes a subscription.
//
// An OnEvent call already in progress finishes; events still queued for the
// subscriber are dropped and no OnEvent call starts after Unsubscribe
// returns. A subscriber may unsubscribe itself from within OnEvent.
// Returns false if the subscription is unknown or was already removed.
func (p *Publisher) Unsubscribe(s Subscription) bool {
	if s.id == "" || !p.hub.Remove(s.id) {
		return false
	}
	p.logger.Debug("subscriber removed", "subscription_id", s.id)
	return true
}

// Run polls the feed and publishes events until ctx is cancelled.
//
// Run is a blocking call. It returns nil once ctx is cancelled, a
// [*FetchError] if [WithFatalFetchErrors] is enabled and a fetch fails,
// [ErrAlreadyRunning] if the loop is already active, or [ErrClosed] after
// [Publisher.Close].
func (p *Publisher) Run(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}

	p.logger.Info("publisher starting", "feed_url", p.feedURL)
	err := p.scheduler.Run(ctx)
	if errors.Is(err, poller.ErrAlreadyRunning) {
		return ErrAlreadyRunning
	}
	p.logger.Info("publisher stopped", "feed_url", p.feedURL)
	return err
}

// Start runs the poll loop in a background goroutine.
//
// Start is non-blocking and idempotent. Calling Start after [Publisher.Stop]
// or [Publisher.Close] is a no-op. Use [Publisher.Done] to observe the loop
// ending and [Publisher.Err] to read why.
func (p *Publisher) Start(ctx context.Context) {
	if p.closed.Load() {
		return
	}
	p.logger.Info("publisher starting", "feed_url", p.feedURL)
	p.scheduler.Start(ctx)
}

// Stop halts a loop begun by [Publisher.Start] and waits for it to exit.
//
// Stop is idempotent and safe to call before Start. Subscriptions stay
// registered; use [Publisher.Close] to release them.
func (p *Publisher) Stop() {
	p.scheduler.Stop()
}

// Done returns a channel closed when a loop begun by [Publisher.Start] exits.
func (p *Publisher) Done() <-chan struct{} {
	return p.scheduler.Done()
}

// Err returns the error that ended a loop begun by [Publisher.Start].
// It is nil while the loop runs and after a cancellation.
func (p *Publisher) Err() error {
	err := p.scheduler.Err()
	if errors.Is(err, poller.ErrAlreadyRunning) {
		return ErrAlreadyRunning
	}
	return err
}

// Close is [Publisher.Shutdown] bounded to five seconds. A subscriber still
// inside OnEvent when the time runs out is abandoned and logged.
func (p *Publisher) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		p.logger.Warn("subscribers did not drain before close timeout", "error", err)
	}
}

// Shutdown stops a loop begun by [Publisher.Start], removes every
// subscription and waits until their queued events have been delivered or
// ctx ends, in which case it returns ctx.Err() and the remaining deliveries
// continue in the background.
//
// A loop running in the foreground via [Publisher.Run] is governed by its
// own context and keeps polling, but has nobody left to deliver to.
// Only the first call waits; later calls return nil. After Shutdown,
// Subscribe and Run return [ErrClosed].
func (p *Publisher) Shutdown(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.scheduler.Stop()
		err = p.hub.Close(ctx)
	})
	return err
}

// handleRecord decodes one raw record and queues it for every subscriber.
func (p *Publisher) handleRecord(_ context.Context, raw json.RawMessage) {
	e, err := Decode(raw)
	if err != nil {
		p.decodeFailures.Add(1)
		p.metrics.DecodeFailures.Inc()
		p.logger.Warn("skipping undecodable record", "error", err)
		p.report(err)
		return
	}

	p.eventsDecoded.Add(1)
	p.metrics.EventsDecoded.WithLabelValues(e.Kind().String()).Inc()
	p.latest.Update(e.Kind().String(), e)

	n := p.hub.Broadcast(e)
	p.logger.Debug("event published",
		"kind", e.Kind().String(),
		"repository", e.Repository(),
		"subscribers", n,
	)
}

// deliver hands one event to one subscriber. It runs on the subscription's
// delivery goroutine.
func (p *Publisher) deliver(id string, sub Subscriber, e Event) {
	if err := p.invokeSubscriberSafe(sub, e); err != nil {
		p.subscriberFailures.Add(1)
		p.metrics.SubscriberFailures.Inc()
		p.logger.Warn("subscriber failed",
			"subscription_id", id,
			"kind", e.Kind().String(),
			"repository", e.Repository(),
			"error", err,
		)
		p.report(&SubscriberError{SubscriptionID: id, Err: err})
		return
	}
	p.eventsDelivered.Add(1)
	p.metrics.EventsDelivered.Inc()
}

// invokeSubscriberSafe calls OnEvent with panic recovery.
// A panic is logged with a correlation ID and returned as an error.
func (p *Publisher) invokeSubscriberSafe(sub Subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("subscriber panicked",
				"correlation_id", correlationID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic (correlation_id=%s): %v", correlationID, r)
		}
	}()
	return sub.OnEvent(e)
}

// report passes err to the error handler, if one is configured.
// Panics in the handler are logged but do not propagate.
func (p *Publisher) report(err error) {
	if p.errorHandler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("error handler panicked", "panic", r, "error", err)
		}
	}()
	p.errorHandler(err)
}

// observer receives loop progress from the scheduler.
type observer struct {
	p *Publisher
}

func (o observer) CycleStarted(c poller.Cycle) {
	p := o.p
	p.cycles.Add(1)
	p.metrics.ObserveCycle(c.Interval, c.EventDelay, c.Latency, c.NotModified)

	p.mu.Lock()
	p.lastFetchAt = c.FetchedAt
	p.pollInterval = c.Interval
	p.eventDelay = c.EventDelay
	p.mu.Unlock()

	p.logger.Debug("poll cycle started",
		"cycle", c.Seq,
		"records", c.Records,
		"interval", c.Interval.String(),
		"delay", c.EventDelay.String(),
		"not_modified", c.NotModified,
		"latency_ms", c.Latency.Milliseconds(),
	)
}

func (o observer) FetchFailed(resp poller.Response, retryIn time.Duration) error {
	p := o.p
	p.fetchFailures.Add(1)
	p.metrics.FetchFailures.Inc()

	fetchErr := &FetchError{URL: p.feedURL, StatusCode: resp.StatusCode, Err: resp.Error}

	if p.fatalFetch {
		p.logger.Error("fetch failed", "feed_url", p.feedURL, "status_code", resp.StatusCode, "error", resp.Error)
		p.report(fetchErr)
		return fetchErr
	}

	p.logger.Warn("fetch failed",
		"feed_url", p.feedURL,
		"status_code", resp.StatusCode,
		"retry_in", retryIn.String(),
		"error", resp.Error,
	)
	p.report(fetchErr)
	return nil
}
