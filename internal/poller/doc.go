// Package poller provides the fetch-and-pace loop for a polled event feed.
//
// This package is internal to hubbub and handles all contact with the remote
// feed. It turns a pull API with a server-imposed rate limit into a paced
// sequence of raw records.
//
// The main components are:
//
//   - [Client]: HTTP client with size limits, poll interval header parsing and ETag support
//   - [Scheduler]: Runs fetch, pace, hand off, repeat until cancelled
//   - [PerEventDelay]: Spreads one polling interval across a batch
//
// Records are handed to a [Handler] as raw JSON; decoding and fan-out live in
// the root hubbub package. Users of the hubbub library should not need to
// interact with this package directly.
package poller
