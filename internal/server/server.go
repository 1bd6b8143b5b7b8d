package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// kindParam is the query parameter used to filter the event stream.
	kindParam = "kind"

	// sourcePlaceholder is the marker in the dashboard HTML replaced with
	// the feed URL.
	sourcePlaceholder = "{{.Source}}"
)

// Feed is the event source served by [Server].
type Feed interface {
	// Subscribe registers a stream client interested in the given kind names
	// (every kind when empty). Each value received from the channel is one
	// JSON-encoded event. The returned function unregisters the client; the
	// channel is not closed by it.
	Subscribe(kinds []string) (<-chan []byte, func(), error)

	// Stats returns a JSON-encodable snapshot of the publisher's counters.
	Stats() any

	// Kinds lists the event kind names accepted as filters.
	Kinds() []string

	// Latest returns a JSON-encodable list of the newest event per kind.
	Latest() any

	// Source is the URL of the polled feed, shown on the dashboard.
	Source() string
}

// Server handles HTTP requests for the event stream and its diagnostics.
//
// Server provides these endpoints:
//   - GET /: the embedded dashboard (when assets are set)
//   - GET /api/events: Server-Sent Events stream, filtered by ?kind=
//   - GET /api/stats: publisher counters as JSON
//   - GET /api/kinds: known event kinds as JSON
//   - GET /api/latest: newest event per kind as JSON
//   - GET /metrics: Prometheus exposition (when a metrics handler is set)
//   - GET /healthz: liveness probe
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	feed    Feed
	metrics http.Handler
	assets  fs.FS
	port    int
	logger  *slog.Logger

	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - feed: Event source for streaming, stats and kinds
//   - metrics: Handler for /metrics (may be nil to disable the route)
//   - assets: Filesystem holding assets/index.html (may be nil to disable the dashboard)
//   - port: TCP port to listen on (0 picks a free port)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(feed Feed, metrics http.Handler, assets fs.FS, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		feed:    feed,
		metrics: metrics,
		assets:  assets,
		port:    port,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Handler returns the request router without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/kinds", s.handleKinds)
	mux.HandleFunc("/api/latest", s.handleLatest)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout. [Server.Done] is closed once shutdown completes.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the server is listening on, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done returns a channel closed after a started server has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// handleStats returns the publisher counters as JSON.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.feed.Stats())
}

// handleKinds returns the known event kinds as JSON.
func (s *Server) handleKinds(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.feed.Kinds())
}

// handleLatest returns the newest event of each kind as JSON.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.feed.Latest())
}

// handleDashboard serves the dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape the feed URL to prevent XSS
	rendered := strings.ReplaceAll(string(content), sourcePlaceholder, html.EscapeString(s.feed.Source()))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// validateKinds returns the first name not in the feed's kind list.
func (s *Server) validateKinds(names []string) (string, bool) {
	known := make(map[string]bool)
	for _, k := range s.feed.Kinds() {
		known[k] = true
	}
	for _, n := range names {
		if !known[n] {
			return n, false
		}
	}
	return "", true
}

// handleEvents streams events via Server-Sent Events. Each write carries a
// deadline so a stalled client cannot pin the handler past cancellation.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	kinds := r.URL.Query()[kindParam]
	if bad, ok := s.validateKinds(kinds); !ok {
		http.Error(w, fmt.Sprintf("unknown event kind %q", bad), http.StatusBadRequest)
		return
	}

	events, unsubscribe, err := s.feed.Subscribe(kinds)
	if err != nil {
		s.logger.Warn("stream subscription rejected", "error", err)
		http.Error(w, "Stream unavailable", http.StatusServiceUnavailable)
		return
	}
	defer unsubscribe()

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeAndFlush writes SSE data with a deadline to prevent blocking forever.
	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	s.logger.Debug("stream client connected", "remote", r.RemoteAddr, "kinds", kinds)
	defer s.logger.Debug("stream client disconnected", "remote", r.RemoteAddr)

	for {
		select {
		case data, ok := <-events:
			if !ok {
				return
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}
