package hubbub

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
)

func mustEvent(t *testing.T, kind Kind, repo string) Event {
	t.Helper()
	e, err := NewEvent(kind, "https://avatars.githubusercontent.com/u/1", repo)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return e
}

func TestConsoleSubscriber(t *testing.T) {
	var buf bytes.Buffer
	sub := NewConsoleSubscriber(&buf)

	for _, e := range []Event{
		mustEvent(t, KindPush, "o/r"),
		mustEvent(t, KindFork, "a/b"),
	} {
		if err := sub.OnEvent(e); err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
	}

	want := "PushEvent:o/r\nForkEvent:a/b\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

// TestConsoleSubscriber_RegisteredTwice calls one console subscriber from
// several goroutines, as two registrations of it would, and checks that no
// line is interleaved.
func TestConsoleSubscriber_RegisteredTwice(t *testing.T) {
	var buf bytes.Buffer
	sub := NewConsoleSubscriber(&buf)
	e := mustEvent(t, KindPush, "o/r")

	const goroutines, perGoroutine = 4, 100
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = sub.OnEvent(e)
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != goroutines*perGoroutine {
		t.Fatalf("got %d lines, want %d", len(lines), goroutines*perGoroutine)
	}
	for _, line := range lines {
		if line != "PushEvent:o/r" {
			t.Fatalf("corrupted line %q", line)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestConsoleSubscriber_WriteError(t *testing.T) {
	sub := NewConsoleSubscriber(failingWriter{})
	if err := sub.OnEvent(mustEvent(t, KindPush, "o/r")); err == nil {
		t.Error("OnEvent() error = nil, want write error")
	}
}

func TestFilterKinds(t *testing.T) {
	var got []string
	sub := FilterKinds(SubscriberFunc(func(e Event) error {
		got = append(got, e.String())
		return nil
	}), KindWatch, KindRelease)

	for _, e := range []Event{
		mustEvent(t, KindPush, "o/push"),
		mustEvent(t, KindWatch, "o/watch"),
		mustEvent(t, KindRelease, "o/release"),
		mustEvent(t, KindFork, "o/fork"),
	} {
		if err := sub.OnEvent(e); err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
	}

	if len(got) != 2 || got[0] != "WatchEvent:o/watch" || got[1] != "ReleaseEvent:o/release" {
		t.Errorf("delivered = %v, want only Watch and Release", got)
	}
}

func TestFilterKinds_NoKindsPassesAll(t *testing.T) {
	calls := 0
	inner := SubscriberFunc(func(Event) error {
		calls++
		return nil
	})

	sub := FilterKinds(inner)
	_ = sub.OnEvent(mustEvent(t, KindPush, "o/r"))
	_ = sub.OnEvent(mustEvent(t, KindGist, "o/r"))

	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestFilterKinds_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	sub := FilterKinds(SubscriberFunc(func(Event) error { return boom }), KindPush)

	if err := sub.OnEvent(mustEvent(t, KindPush, "o/r")); !errors.Is(err, boom) {
		t.Errorf("OnEvent() error = %v, want %v", err, boom)
	}
	if err := sub.OnEvent(mustEvent(t, KindFork, "o/r")); err != nil {
		t.Errorf("filtered OnEvent() error = %v, want nil", err)
	}
}

func TestSubscription_ZeroValue(t *testing.T) {
	var s Subscription
	if s.ID() != "" {
		t.Errorf("zero Subscription ID() = %q, want empty", s.ID())
	}
}
