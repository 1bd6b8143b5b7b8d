// Standalone mock events feed for testing the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockfeed
//
// Then in another terminal:
//
//	go run ./cmd/hubbub serve -c example/hubbub.yaml
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	interval := flag.Int("interval", 10, "X-Poll-Interval in seconds")
	failRate := flag.Float64("fail-rate", 0, "fraction of requests answered with 503")
	flag.Parse()

	fmt.Printf("Mock events feed starting on %s (interval %ds)\n", *addr, *interval)
	fmt.Println("Serves /events with a fresh batch each interval, 304 on repeat polls")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu     sync.Mutex
		seq    int
		batch  string
		nextAt time.Time
		kinds  = []string{"PushEvent", "WatchEvent", "ForkEvent", "IssuesEvent", "CreateEvent", "ReleaseEvent"}
	)

	http.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		if *failRate > 0 && rand.Float64() < *failRate {
			http.Error(w, "mock outage", http.StatusServiceUnavailable)
			return
		}

		mu.Lock()
		if time.Now().After(nextAt) {
			seq++
			n := 5 + rand.Intn(26)
			records := make([]string, n)
			for i := range records {
				uid := rand.Intn(100000)
				records[i] = fmt.Sprintf(
					`{"type":%q,"actor":{"login":"user%d","avatar_url":"https://avatars.githubusercontent.com/u/%d?v=4"},"repo":{"name":"mock/repo-%d"}}`,
					kinds[rand.Intn(len(kinds))], uid, uid, rand.Intn(20),
				)
			}
			batch = "[" + strings.Join(records, ",") + "]"
			nextAt = time.Now().Add(time.Duration(*interval) * time.Second)
			slog.Info("new batch", "seq", seq, "events", n)
		}
		etag := fmt.Sprintf(`W/"batch-%d"`, seq)
		body := batch
		mu.Unlock()

		w.Header().Set("X-Poll-Interval", fmt.Sprint(*interval))
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
