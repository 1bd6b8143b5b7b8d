package hubbub

import (
	"fmt"
	"io"
	"sync"
)

// Subscriber receives events from a [Publisher].
//
// OnEvent is called from a goroutine dedicated to this subscription, one
// event at a time and in feed order. A slow subscriber delays only its own
// deliveries. The returned error is reported (logged, counted and passed to
// the error handler) and never affects the publisher or other subscribers.
type Subscriber interface {
	OnEvent(Event) error
}

// SubscriberFunc adapts an ordinary function to the [Subscriber] interface.
type SubscriberFunc func(Event) error

// OnEvent calls f(e).
func (f SubscriberFunc) OnEvent(e Event) error {
	return f(e)
}

// Subscription identifies a registered [Subscriber].
//
// The zero Subscription is not registered; passing it to
// [Publisher.Unsubscribe] reports false.
type Subscription struct {
	id string
}

// ID returns the subscription's unique identifier.
func (s Subscription) ID() string {
	return s.id
}

// NewConsoleSubscriber returns a [Subscriber] that writes one "Kind:owner/repo"
// line per event to w.
//
// Writes from one console subscriber are serialized, so it may be
// registered more than once. Separate console subscribers sharing w need a
// writer that is safe for concurrent use, such as an *os.File.
func NewConsoleSubscriber(w io.Writer) Subscriber {
	return &consoleSubscriber{w: w}
}

type consoleSubscriber struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *consoleSubscriber) OnEvent(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintln(c.w, e.String()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// FilterKinds wraps sub so that it only receives events of the given kinds.
//
// Events of other kinds are skipped silently. With no kinds, sub is
// returned unchanged and receives everything.
func FilterKinds(sub Subscriber, kinds ...Kind) Subscriber {
	if len(kinds) == 0 {
		return sub
	}
	f := &kindFilter{next: sub}
	for _, k := range kinds {
		if k.Valid() {
			f.allow[k] = true
		}
	}
	return f
}

type kindFilter struct {
	next  Subscriber
	allow [kindCount]bool
}

func (f *kindFilter) OnEvent(e Event) error {
	if !f.allow[e.Kind()] {
		return nil
	}
	return f.next.OnEvent(e)
}
