// Package server provides the optional HTTP surface of a hubbub publisher.
//
// This package is internal to hubbub and handles all HTTP concerns:
//
//   - Server-Sent Events: live event stream at "/api/events", optionally
//     filtered by one or more "kind" query parameters
//   - JSON API: counters at "/api/stats", the kind list at "/api/kinds" and
//     the newest event per kind at "/api/latest"
//   - Dashboard: the embedded watch page at "/", when assets are supplied
//   - Operations: Prometheus metrics at "/metrics" and a probe at "/healthz"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
//
// Users of the hubbub library should not need to interact with this package
// directly. The server is started by [hubbub.Publisher.Serve].
package server
