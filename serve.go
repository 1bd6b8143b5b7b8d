package hubbub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jpalmerr/hubbub/dashboard"
	"github.com/jpalmerr/hubbub/internal/server"
)

// streamBufferSize bounds the events queued for one HTTP stream client.
const streamBufferSize = 100

// errStreamClientBehind is returned to the publisher when an HTTP stream
// client cannot keep up and an event is dropped for it.
var errStreamClientBehind = errors.New("stream client buffer full, event dropped")

// Serve exposes the publisher over HTTP on the given port until ctx is
// cancelled.
//
// Routes:
//   - GET /: dashboard showing the latest repository per watched kind
//   - GET /api/events: Server-Sent Events stream, one JSON [Event] per
//     message; repeat ?kind= to filter (unknown kinds are rejected with 400)
//   - GET /api/stats: [Stats] as JSON
//   - GET /api/kinds: all [Kind] names as JSON
//   - GET /api/latest: [Publisher.Latest] as JSON
//   - GET /metrics: Prometheus metrics
//   - GET /healthz: liveness probe
//
// Serve blocks until ctx is cancelled and the server has shut down. It
// returns an error only if the port cannot be bound. Serve does not start
// the poll loop; use [Publisher.Run] or [Publisher.Start] alongside it.
func (p *Publisher) Serve(ctx context.Context, port int) error {
	srv := server.NewServer(streamFeed{p}, p.metrics.Handler(), dashboard.Assets, port, p.logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	<-srv.Done()
	return nil
}

// Handler returns the HTTP routes of [Publisher.Serve] for mounting on a
// caller-owned server.
func (p *Publisher) Handler() http.Handler {
	return server.NewServer(streamFeed{p}, p.metrics.Handler(), dashboard.Assets, 0, p.logger).Handler()
}

// streamFeed adapts a Publisher to the server's Feed interface.
type streamFeed struct {
	p *Publisher
}

func (f streamFeed) Subscribe(names []string) (<-chan []byte, func(), error) {
	kinds := make([]Kind, 0, len(names))
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return nil, nil, err
		}
		kinds = append(kinds, k)
	}

	// the channel is never closed: queued deliveries may still arrive
	// after unsubscribe and are dropped with the channel
	ch := make(chan []byte, streamBufferSize)
	sub := SubscriberFunc(func(e Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		select {
		case ch <- data:
			return nil
		default:
			return errStreamClientBehind
		}
	})

	s, err := f.p.Subscribe(FilterKinds(sub, kinds...))
	if err != nil {
		return nil, nil, err
	}
	return ch, func() { f.p.Unsubscribe(s) }, nil
}

func (f streamFeed) Stats() any {
	return f.p.Stats()
}

func (f streamFeed) Kinds() []string {
	all := Kinds()
	names := make([]string, len(all))
	for i, k := range all {
		names[i] = k.String()
	}
	return names
}

func (f streamFeed) Latest() any {
	return f.p.Latest()
}

func (f streamFeed) Source() string {
	return f.p.FeedURL()
}
