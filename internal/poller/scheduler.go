package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is used when the feed does not advertise an interval.
const DefaultPollInterval = 60 * time.Second

// ErrAlreadyRunning is returned by [Scheduler.Run] when another Run is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Handler processes one raw record of a batch.
//
// Handler is called synchronously from the poll loop, once per record, in
// feed order. It must not block for long: pacing is measured between calls.
type Handler func(ctx context.Context, record json.RawMessage)

// Cycle describes one fetched batch, reported before its records are handled.
type Cycle struct {
	// Seq numbers successful fetches starting at 1.
	Seq uint64

	// Records is the number of raw records in the batch.
	Records int

	// Interval is the polling interval in effect for this cycle.
	Interval time.Duration

	// EventDelay is the pause inserted after each record.
	EventDelay time.Duration

	// NotModified is true when the feed reported no change since the last fetch.
	NotModified bool

	// FetchedAt is when the fetch started.
	FetchedAt time.Time

	// Latency is the time taken by the fetch.
	Latency time.Duration
}

// Observer is notified of loop progress. Implementations must be fast.
type Observer interface {
	// CycleStarted is called after each successful fetch.
	CycleStarted(c Cycle)

	// FetchFailed is called after each failed fetch. Returning a non-nil
	// error ends [Scheduler.Run] with that error; returning nil makes the
	// loop wait retryIn and fetch again.
	FetchFailed(resp Response, retryIn time.Duration) error
}

// Config holds the fetch and pacing settings of a [Scheduler].
type Config struct {
	// URL is the feed endpoint.
	URL string

	// Headers are sent with every request.
	Headers map[string]string

	// Timeout bounds each request. Zero means no per-request timeout.
	Timeout time.Duration

	// DefaultInterval is used when the feed does not advertise one.
	// Zero means [DefaultPollInterval].
	DefaultInterval time.Duration

	// MinEventDelay is a floor for the per-event pause. Zero disables it.
	MinEventDelay time.Duration
}

// Scheduler runs the fetch-pace loop against a single feed.
//
// Each iteration fetches one batch, then hands every record to the
// [Handler] in order, sleeping [PerEventDelay] after each one so that the
// batch is spread across one polling interval. The next fetch never starts
// earlier than one interval after the previous fetch started.
//
// Every suspension point (the fetch and each pause) observes context
// cancellation, after which the loop returns without handling the
// remaining records of the batch.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	cfg      Config
	client   *Client
	handler  Handler
	observer Observer

	// sleep is replaced in tests to observe pauses without waiting.
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time

	running atomic.Bool
	seq     uint64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - cfg: Feed URL, request settings and pacing floor
//   - client: Feed client (nil creates one with default transport)
//   - handler: Called for each raw record
//   - observer: Notified of cycles and fetch failures (may be nil)
//
// The scheduler runs either in the foreground via [Scheduler.Run] or in the
// background via [Scheduler.Start] and [Scheduler.Stop].
func NewScheduler(cfg Config, client *Client, handler Handler, observer Observer) *Scheduler {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = DefaultPollInterval
	}
	if client == nil {
		client = NewClient(nil)
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Scheduler{
		cfg:      cfg,
		client:   client,
		handler:  handler,
		observer: observer,
		sleep:    sleepContext,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// PerEventDelay spreads interval evenly across a batch of records.
//
// The result is interval/records truncated to whole milliseconds (interval
// itself for an empty batch), raised to floor when floor is positive. The
// truncated remainder is made up by the rate-limit guard at the end of the
// cycle.
func PerEventDelay(interval time.Duration, records int, floor time.Duration) time.Duration {
	if records < 1 {
		records = 1
	}
	delay := (interval / time.Duration(records)).Truncate(time.Millisecond)
	if delay < floor {
		delay = floor
	}
	return delay
}

// Run executes the poll loop until ctx is cancelled.
//
// Run returns nil on cancellation. It returns a non-nil error only if the
// [Observer] turns a fetch failure into a fatal error, or
// [ErrAlreadyRunning] if another Run is in progress.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)
	defer s.client.Close()

	retryIn := s.cfg.DefaultInterval

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchedAt := s.now()
		resp := s.client.Fetch(ctx, s.cfg.URL, s.cfg.Headers, s.cfg.Timeout)
		if ctx.Err() != nil {
			return nil
		}

		if resp.Error != nil {
			// keep the last known interval so a failing feed is not polled faster
			if resp.PollInterval > 0 {
				retryIn = resp.PollInterval
			}
			if err := s.observer.FetchFailed(resp, retryIn); err != nil {
				return err
			}
			if !s.sleep(ctx, retryIn) {
				return nil
			}
			continue
		}

		interval := resp.PollInterval
		if interval <= 0 {
			interval = s.cfg.DefaultInterval
		}
		retryIn = interval

		delay := PerEventDelay(interval, len(resp.Records), s.cfg.MinEventDelay)
		s.seq++
		s.observer.CycleStarted(Cycle{
			Seq:         s.seq,
			Records:     len(resp.Records),
			Interval:    interval,
			EventDelay:  delay,
			NotModified: resp.NotModified,
			FetchedAt:   fetchedAt,
			Latency:     resp.Latency,
		})

		if len(resp.Records) == 0 {
			if !s.sleep(ctx, interval) {
				return nil
			}
			continue
		}

		for _, record := range resp.Records {
			if ctx.Err() != nil {
				return nil
			}
			s.handler(ctx, record)
			if !s.sleep(ctx, delay) {
				return nil
			}
		}

		// never fetch more often than the advertised interval
		if remaining := interval - s.now().Sub(fetchedAt); remaining > 0 {
			if !s.sleep(ctx, remaining) {
				return nil
			}
		}
	}
}

// Start begins the poll loop in a background goroutine.
//
// Start is non-blocking and returns immediately. If ctx is nil,
// context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		err := s.Run(runCtx)

		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()
}

// Stop halts the background loop and waits for it to exit.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op that also prevents later Starts.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	started := s.started
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if started {
		<-s.done
	}
}

// Done returns a channel closed when a loop begun by [Scheduler.Start] exits.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the background loop, if any.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// sleepContext pauses for d, returning false if ctx ends first.
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type nopObserver struct{}

func (nopObserver) CycleStarted(Cycle) {}

func (nopObserver) FetchFailed(Response, time.Duration) error { return nil }
