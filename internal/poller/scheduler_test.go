package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock replaces the scheduler's sleep and now functions so pacing can be
// asserted without waiting. Each sleep advances the clock by its duration.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// onSleep is called after each recorded sleep with the 1-based count.
	onSleep func(n int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) install(s *Scheduler) {
	s.now = c.Now
	s.sleep = c.Sleep
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) bool {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return ctx.Err() == nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// recordingObserver captures every notification from the scheduler.
type recordingObserver struct {
	mu       sync.Mutex
	cycles   []Cycle
	failures []Response
	retries  []time.Duration
	fatal    error
}

func (o *recordingObserver) CycleStarted(c Cycle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cycles = append(o.cycles, c)
}

func (o *recordingObserver) FetchFailed(resp Response, retryIn time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, resp)
	o.retries = append(o.retries, retryIn)
	return o.fatal
}

// feedServer serves a fixed batch of records with an optional interval header.
func feedServer(t *testing.T, records []string, interval string) *httptest.Server {
	t.Helper()
	body := "[" + strings.Join(records, ",") + "]"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if interval != "" {
			w.Header().Set(PollIntervalHeader, interval)
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func numberedRecords(n int) []string {
	records := make([]string, n)
	for i := range records {
		records[i] = fmt.Sprintf(`{"n":%d}`, i+1)
	}
	return records
}

// collectingHandler records the "n" field of each record it receives.
type collectingHandler struct {
	mu   sync.Mutex
	seen []int
}

func (h *collectingHandler) Handle(_ context.Context, record json.RawMessage) {
	var v struct{ N int }
	_ = json.Unmarshal(record, &v)
	h.mu.Lock()
	h.seen = append(h.seen, v.N)
	h.mu.Unlock()
}

func (h *collectingHandler) Seen() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.seen...)
}

func TestPerEventDelay(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		records  int
		floor    time.Duration
		want     time.Duration
	}{
		{"single record gets whole interval", 60 * time.Second, 1, 0, 60 * time.Second},
		{"even split", 60 * time.Second, 4, 0, 15 * time.Second},
		{"thirty records", 60 * time.Second, 30, 0, 2 * time.Second},
		{"empty batch", 60 * time.Second, 0, 0, 60 * time.Second},
		{"negative count", 60 * time.Second, -1, 0, 60 * time.Second},
		{"non-integer millis truncated", time.Second, 3, 0, 333 * time.Millisecond},
		{"sixty seconds over seven", 60 * time.Second, 7, 0, 8571 * time.Millisecond},
		{"sub-millisecond share", time.Second, 3000, 0, 0},
		{"floor raises tiny delay", time.Second, 1000, 10 * time.Millisecond, 10 * time.Millisecond},
		{"floor below delay ignored", 60 * time.Second, 2, time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PerEventDelay(tt.interval, tt.records, tt.floor)
			if got != tt.want {
				t.Errorf("PerEventDelay(%v, %d, %v) = %v, want %v", tt.interval, tt.records, tt.floor, got, tt.want)
			}
		})
	}
}

// TestScheduler_PacesBatchAcrossInterval verifies that records are handled in
// feed order with interval/N between them.
func TestScheduler_PacesBatchAcrossInterval(t *testing.T) {
	srv := feedServer(t, numberedRecords(4), "2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	obs := &recordingObserver{}
	s := NewScheduler(Config{URL: srv.URL}, nil, h.Handle, obs)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 4 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.Seen(); fmt.Sprint(got) != "[1 2 3 4]" {
		t.Errorf("handled records = %v, want [1 2 3 4]", got)
	}

	want := []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}
	if got := clock.Sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}

	if len(obs.cycles) != 1 {
		t.Fatalf("cycles = %d, want 1", len(obs.cycles))
	}
	c := obs.cycles[0]
	if c.Seq != 1 || c.Records != 4 || c.Interval != 2*time.Second || c.EventDelay != 500*time.Millisecond {
		t.Errorf("cycle = %+v, want seq 1, 4 records, 2s interval, 500ms delay", c)
	}
}

// TestScheduler_SingleRecordWaitsWholeInterval covers a feed advertising 60s
// with a one-record page: the record is handled, then the loop pauses 60s.
func TestScheduler_SingleRecordWaitsWholeInterval(t *testing.T) {
	srv := feedServer(t, []string{`{"n":1}`}, "60")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	s := NewScheduler(Config{URL: srv.URL}, nil, h.Handle, nil)

	clock := newFakeClock()
	clock.onSleep = func(int) { cancel() }
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.Seen(); len(got) != 1 {
		t.Fatalf("handled %d records, want 1", len(got))
	}
	if got := clock.Sleeps(); len(got) != 1 || got[0] != 60*time.Second {
		t.Errorf("sleeps = %v, want [1m0s]", got)
	}
}

func TestScheduler_DefaultIntervalWithoutHeader(t *testing.T) {
	srv := feedServer(t, numberedRecords(2), "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	s := NewScheduler(Config{URL: srv.URL, DefaultInterval: 10 * time.Second}, nil, h.Handle, nil)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []time.Duration{5 * time.Second, 5 * time.Second}
	if got := clock.Sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}
}

func TestScheduler_BuiltinDefaultInterval(t *testing.T) {
	s := NewScheduler(Config{URL: "http://example.com"}, nil, func(context.Context, json.RawMessage) {}, nil)
	if s.cfg.DefaultInterval != DefaultPollInterval {
		t.Errorf("DefaultInterval = %v, want %v", s.cfg.DefaultInterval, DefaultPollInterval)
	}
}

func TestScheduler_EmptyBatchWaitsFullInterval(t *testing.T) {
	srv := feedServer(t, nil, "30")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	obs := &recordingObserver{}
	s := NewScheduler(Config{URL: srv.URL}, nil, h.Handle, obs)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := h.Seen(); len(got) != 0 {
		t.Errorf("handled %d records, want 0", len(got))
	}
	want := []time.Duration{30 * time.Second, 30 * time.Second}
	if got := clock.Sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}
	if len(obs.cycles) != 2 {
		t.Errorf("cycles = %d, want 2 (one refetch after the interval)", len(obs.cycles))
	}
}

// TestScheduler_RateLimitGuard verifies the loop tops up truncated pacing so
// that consecutive fetches are at least one interval apart.
func TestScheduler_RateLimitGuard(t *testing.T) {
	srv := feedServer(t, numberedRecords(3), "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, nil)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 4 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 4 {
		t.Fatalf("sleeps = %v, want 3 pacing pauses and 1 guard pause", sleeps)
	}
	var total time.Duration
	for _, d := range sleeps {
		total += d
	}
	if total != time.Second {
		t.Errorf("total pause = %v, want exactly 1s", total)
	}
	if sleeps[3] != time.Millisecond {
		t.Errorf("guard pause = %v, want 1ms", sleeps[3])
	}
}

func TestScheduler_MinEventDelay(t *testing.T) {
	srv := feedServer(t, numberedRecords(4), "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewScheduler(Config{URL: srv.URL, MinEventDelay: time.Second}, nil, func(context.Context, json.RawMessage) {}, nil)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// the floor stretches the cycle past the interval, so no guard pause
	for i, d := range clock.Sleeps() {
		if d != time.Second {
			t.Errorf("sleeps[%d] = %v, want 1s", i, d)
		}
	}
}

// TestScheduler_CancelDuringPacing verifies that cancelling between the
// second and third record of a five-record batch stops after exactly two.
func TestScheduler_CancelDuringPacing(t *testing.T) {
	srv := feedServer(t, numberedRecords(5), "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int32
	handler := func(context.Context, json.RawMessage) {
		if handled.Add(1) == 2 {
			// cancel while the loop is paused before record 3
			go func() {
				time.Sleep(50 * time.Millisecond)
				cancel()
			}()
		}
	}

	// 5 records over 5s: one second between records
	s := NewScheduler(Config{URL: srv.URL, DefaultInterval: 5 * time.Second}, nil, handler, nil)

	start := time.Now()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	elapsed := time.Since(start)

	if got := handled.Load(); got != 2 {
		t.Errorf("handled = %d, want 2", got)
	}
	if elapsed > 1900*time.Millisecond {
		t.Errorf("Run() returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestScheduler_CancelDuringFetch(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	obs := &recordingObserver{}
	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, obs)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancellation during fetch")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.failures) != 0 {
		t.Errorf("cancellation reported as %d fetch failures, want 0", len(obs.failures))
	}
}

// TestScheduler_FetchFailureRetriesAfterInterval verifies that a failed fetch
// is reported and retried only after the standard interval.
func TestScheduler_FetchFailureRetriesAfterInterval(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set(PollIntervalHeader, "10")
		_, _ = w.Write([]byte(`[{"n":7}]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	obs := &recordingObserver{}
	s := NewScheduler(Config{URL: srv.URL, DefaultInterval: 45 * time.Second}, nil, h.Handle, obs)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(obs.failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(obs.failures))
	}
	if obs.failures[0].StatusCode != http.StatusBadGateway {
		t.Errorf("failure status = %d, want 502", obs.failures[0].StatusCode)
	}
	if obs.retries[0] != 45*time.Second {
		t.Errorf("retryIn = %v, want default 45s", obs.retries[0])
	}

	want := []time.Duration{45 * time.Second, 10 * time.Second}
	if got := clock.Sleeps(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("sleeps = %v, want %v", got, want)
	}
	if got := h.Seen(); fmt.Sprint(got) != "[7]" {
		t.Errorf("handled = %v, want [7]", got)
	}
}

func TestScheduler_FatalFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fatal := errors.New("feed is gone")
	obs := &recordingObserver{fatal: fatal}
	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, obs)
	newFakeClock().install(s)

	err := s.Run(context.Background())
	if !errors.Is(err, fatal) {
		t.Errorf("Run() error = %v, want %v", err, fatal)
	}
}

func TestScheduler_NotModifiedIsEmptyCycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(PollIntervalHeader, "20")
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`[{"n":1}]`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &collectingHandler{}
	obs := &recordingObserver{}
	s := NewScheduler(Config{URL: srv.URL}, nil, h.Handle, obs)

	clock := newFakeClock()
	clock.onSleep = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	clock.install(s)

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(obs.cycles) != 2 {
		t.Fatalf("cycles = %d, want 2", len(obs.cycles))
	}
	if !obs.cycles[1].NotModified || obs.cycles[1].Records != 0 {
		t.Errorf("second cycle = %+v, want not-modified and empty", obs.cycles[1])
	}
	if got := h.Seen(); len(got) != 1 {
		t.Errorf("handled = %v, want one record", got)
	}
}

func TestScheduler_RunTwiceConcurrently(t *testing.T) {
	srv := feedServer(t, nil, "60")

	started := make(chan struct{})
	var once sync.Once
	obs := &cycleSignal{fn: func() { once.Do(func() { close(started) }) }}

	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, obs)
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never started")
	}

	if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
}

type cycleSignal struct{ fn func() }

func (c *cycleSignal) CycleStarted(Cycle) { c.fn() }

func (c *cycleSignal) FetchFailed(Response, time.Duration) error { return nil }

// TestScheduler_StopBeforeStart verifies that calling Stop() on a scheduler
// that was never started does not panic and is a safe no-op.
func TestScheduler_StopBeforeStart(t *testing.T) {
	s := NewScheduler(Config{URL: "http://example.com"}, nil, func(context.Context, json.RawMessage) {}, nil)

	s.Stop()

	// Start after Stop must not launch the loop
	s.Start(context.Background())
	select {
	case <-s.Done():
		t.Error("Done() closed, but loop should never have started")
	default:
	}
}

// TestScheduler_StopTwice verifies that Stop() is idempotent and can be
// called multiple times without panic or deadlock.
func TestScheduler_StopTwice(t *testing.T) {
	srv := feedServer(t, nil, "60")
	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, nil)
	s.Start(context.Background())

	s.Stop()
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Error("Done() should be closed after Stop()")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after graceful stop", err)
	}
}

// TestScheduler_StartTwice verifies that Start() is idempotent and calling
// it multiple times does not spawn multiple polling goroutines.
func TestScheduler_StartTwice(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set(PollIntervalHeader, "60")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, nil)
	s.Start(context.Background())
	s.Start(context.Background())

	time.Sleep(100 * time.Millisecond)
	s.Stop()

	if got := calls.Load(); got != 1 {
		t.Errorf("feed fetched %d times, want 1 (single loop)", got)
	}
}

// TestScheduler_ConcurrentStartStop verifies that calling Start() and Stop()
// concurrently does not cause a race condition or panic.
// Run with: go test -race ./internal/poller/...
func TestScheduler_ConcurrentStartStop(t *testing.T) {
	srv := feedServer(t, nil, "60")

	for i := 0; i < 100; i++ {
		s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, nil)

		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			s.Start(context.Background())
		}()

		go func() {
			defer wg.Done()
			s.Stop()
		}()

		wg.Wait()
		s.Stop()
	}
}

func TestScheduler_ParentContextCancelEndsStart(t *testing.T) {
	srv := feedServer(t, nil, "60")
	s := NewScheduler(Config{URL: srv.URL}, nil, func(context.Context, json.RawMessage) {}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after parent context cancellation")
	}
}
