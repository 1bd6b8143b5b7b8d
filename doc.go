// Package hubbub turns a polled event feed into a steady stream of events.
//
// Feeds such as the GitHub events API are pull-only and rate limited: each
// response carries a page of recent events and an X-Poll-Interval header
// telling the client how many seconds to wait before polling again. Naively
// republishing each page produces a burst every interval. hubbub instead
// spreads every page evenly across the interval, so subscribers observe what
// looks like a continuous stream.
//
// # Quick Start
//
// Create a publisher, attach subscribers and run it until shutdown:
//
//	p, _ := hubbub.New()
//	defer p.Close()
//
//	p.Subscribe(hubbub.NewConsoleSubscriber(os.Stdout))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	p.Run(ctx) // blocks until context is cancelled
//
// # Configuration
//
// hubbub uses the functional options pattern for configuration:
//
//	p, err := hubbub.New(
//	    hubbub.WithFeedURL("https://api.github.com/orgs/golang/events"),
//	    hubbub.WithHeader("Authorization", "Bearer "+token),
//	    hubbub.WithTimeout(5 * time.Second),
//	    hubbub.WithMinEventDelay(100 * time.Millisecond),
//	    hubbub.WithLogger(logger),
//	)
//
// # Events
//
// Each feed record is decoded by [Decode] into an immutable [Event] holding
// its [Kind], the actor's avatar URL and the repository name. A record that
// is incomplete or carries a kind outside the closed set is skipped and
// reported; it never stops the stream.
//
// # Subscribers
//
// A [Subscriber] receives events through OnEvent on its own goroutine, in
// feed order. Subscribers never block the poll loop or one another. Errors
// and panics from subscribers are reported via the logger, the metrics and
// the optional [WithErrorHandler] callback. [FilterKinds] restricts a
// subscriber to selected kinds.
//
// # Latest Events
//
// The publisher remembers the newest event of every kind it has decoded.
// [Publisher.Latest] lists them and [Publisher.LatestOf] looks up one kind.
// [Publisher.Serve] exposes them at /api/latest and on a small dashboard at
// "/" where viewers pick the kinds they want to watch.
//
// # Architecture
//
// hubbub consists of several internal packages (under internal/):
//
//   - internal/poller: feed client and the fetch-and-pace loop
//   - internal/fanout: subscriber registry with per-subscriber mailboxes
//   - internal/metrics: Prometheus collectors
//   - internal/store: latest value per key
//   - internal/server: HTTP server with Server-Sent Events and JSON API
//
// The internal packages are not part of the public API and may change
// without notice.
package hubbub
