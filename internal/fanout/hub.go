package fanout

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrClosed is returned by [Hub.Add] after [Hub.Close].
	ErrClosed = errors.New("hub closed")

	// ErrDuplicateID is returned by [Hub.Add] when the ID is already registered.
	ErrDuplicateID = errors.New("duplicate subscriber id")
)

// Hub is a registry of subscribers with snapshot broadcast.
//
// Each subscriber owns an unbounded FIFO mailbox drained by its own
// goroutine, so a slow subscriber never blocks [Hub.Broadcast] nor any other
// subscriber, and nothing is dropped while it stays registered. Values reach
// a subscriber in the order they were broadcast.
//
// Hub is safe for concurrent use. Add and Remove may be called while a
// broadcast is in progress; the broadcast uses the subscriber set as it was
// when it started.
type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[string]*mailbox[T]
	closed bool

	// wg tracks drain goroutines
	wg sync.WaitGroup
}

// New creates an empty [Hub].
func New[T any]() *Hub[T] {
	return &Hub[T]{
		subs: make(map[string]*mailbox[T]),
	}
}

// Add registers deliver as the subscriber identified by id.
//
// deliver is called from a dedicated goroutine, one value at a time. It
// receives only values broadcast after Add returns.
func (h *Hub[T]) Add(id string, deliver func(T)) error {
	if id == "" {
		return errors.New("subscriber id is required")
	}
	if deliver == nil {
		return errors.New("deliver func is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if _, exists := h.subs[id]; exists {
		return ErrDuplicateID
	}

	mb := newMailbox(deliver)
	h.subs[id] = mb

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		mb.drain()
	}()

	return nil
}

// Remove unregisters the subscriber with the given ID and discards the
// values still queued for it.
//
// A delivery already in progress is allowed to finish; no other delivery
// starts once Remove returns. Remove does not wait for the in-progress one,
// so deliver may call Remove on its own subscription. Returns false if the
// ID is unknown or already removed.
func (h *Hub[T]) Remove(id string) bool {
	h.mu.Lock()
	mb, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		mb.discard()
	}
	return ok
}

// Broadcast queues v for every current subscriber and returns how many
// mailboxes accepted it. It never blocks on a subscriber.
func (h *Hub[T]) Broadcast(v T) int {
	h.mu.RLock()
	snapshot := make([]*mailbox[T], 0, len(h.subs))
	for _, mb := range h.subs {
		snapshot = append(snapshot, mb)
	}
	h.mu.RUnlock()

	n := 0
	for _, mb := range snapshot {
		// a concurrent Remove may have closed the mailbox after the snapshot
		if mb.push(v) {
			n++
		}
	}
	return n
}

// Len returns the number of registered subscribers.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Backlog returns the number of values queued but not yet delivered across
// all registered subscribers.
func (h *Hub[T]) Backlog() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, mb := range h.subs {
		total += mb.len()
	}
	return total
}

// Close removes every subscriber and waits until their queued values have
// been delivered and every in-progress delivery has returned.
//
// If ctx ends first, Close stops waiting and returns ctx.Err(); mailboxes
// keep draining in the background. Safe to call multiple times. Add fails
// with [ErrClosed] afterwards.
func (h *Hub[T]) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = make(map[string]*mailbox[T])
	h.mu.Unlock()

	for _, mb := range subs {
		mb.close()
	}

	drained := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mailbox is an unbounded FIFO queue with a single consumer.
type mailbox[T any] struct {
	deliver func(T)

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool
}

func newMailbox[T any](deliver func(T)) *mailbox[T] {
	mb := &mailbox[T]{deliver: deliver}
	mb.cond = sync.NewCond(&mb.mu)
	return mb
}

func (m *mailbox[T]) push(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.queue = append(m.queue, v)
	m.cond.Signal()
	return true
}

// close stops accepting values; queued ones are still delivered.
func (m *mailbox[T]) close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
}

// discard stops accepting values and drops the queued ones.
func (m *mailbox[T]) discard() {
	m.mu.Lock()
	m.closed = true
	clear(m.queue)
	m.queue = nil
	m.cond.Signal()
	m.mu.Unlock()
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// drain delivers queued values until the mailbox is closed and empty.
func (m *mailbox[T]) drain() {
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(v)
	}
}
