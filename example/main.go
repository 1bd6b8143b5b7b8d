package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/hubbub"
)

func main() {
	// start mock feed (see mock_feed.go): a new batch every 10s
	go StartMockFeed(":9999", 10)
	time.Sleep(100 * time.Millisecond)

	p, err := hubbub.New(
		hubbub.WithFeedURL("http://localhost:9999/events"),
		hubbub.WithMinEventDelay(50*time.Millisecond),
		hubbub.WithErrorHandler(func(err error) {
			slog.Warn("publisher error", "error", err)
		}),
	)
	if err != nil {
		slog.Error("failed to create publisher", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	// print everything except pushes
	console := hubbub.FilterKinds(hubbub.NewConsoleSubscriber(os.Stdout),
		hubbub.KindWatch, hubbub.KindFork, hubbub.KindIssues,
		hubbub.KindPullRequest, hubbub.KindRelease,
	)
	if _, err := p.Subscribe(console); err != nil {
		slog.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  hubbub demo")
	fmt.Println()
	fmt.Println("  Console: non-push events from the mock feed")
	fmt.Println("  Stream:  curl -N http://localhost:8080/api/events")
	fmt.Println("  Stats:   curl http://localhost:8080/api/stats")
	fmt.Println()
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p.Start(ctx)
	if err := p.Serve(ctx, 8080); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
