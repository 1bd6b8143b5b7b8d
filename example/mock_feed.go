package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

var (
	mockKinds = []string{"PushEvent", "PushEvent", "PushEvent", "WatchEvent", "ForkEvent", "IssuesEvent", "PullRequestEvent", "ReleaseEvent"}
	mockRepos = []string{"golang/go", "prometheus/prometheus", "spf13/cobra", "kubernetes/kubernetes", "grafana/grafana"}
)

// mockFeed hands out a new batch of events once per poll interval.
// Polls within the same window get a 304 when they send the batch's ETag.
type mockFeed struct {
	interval int

	mu     sync.Mutex
	seq    int
	batch  []byte
	nextAt time.Time
}

// StartMockFeed runs a GitHub-style events feed on addr.
// Each batch holds 5-30 random events; a new batch is produced every
// interval seconds. Call this in a goroutine before creating the publisher.
func StartMockFeed(addr string, interval int) {
	f := &mockFeed{interval: interval}

	mux := http.NewServeMux()
	mux.HandleFunc("/events", f.serveHTTP)

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock feed error", "error", err)
	}
}

func (f *mockFeed) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	if time.Now().After(f.nextAt) {
		f.seq++
		f.batch = randomBatch(5 + rand.Intn(26))
		f.nextAt = time.Now().Add(time.Duration(f.interval) * time.Second)
		slog.Info("new batch", "seq", f.seq, "bytes", len(f.batch))
	}
	etag := fmt.Sprintf(`W/"batch-%d"`, f.seq)
	body := f.batch
	f.mu.Unlock()

	w.Header().Set("X-Poll-Interval", fmt.Sprint(f.interval))
	w.Header().Set("ETag", etag)

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// randomBatch builds n event records in the shape of the GitHub events API.
func randomBatch(n int) []byte {
	type actor struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	}
	type repo struct {
		Name string `json:"name"`
	}
	type record struct {
		ID    string `json:"id"`
		Type  string `json:"type"`
		Actor actor  `json:"actor"`
		Repo  repo   `json:"repo"`
	}

	records := make([]record, n)
	for i := range records {
		uid := rand.Intn(100000)
		records[i] = record{
			ID:   fmt.Sprint(rand.Int63()),
			Type: mockKinds[rand.Intn(len(mockKinds))],
			Actor: actor{
				Login:     fmt.Sprintf("user%d", uid),
				AvatarURL: fmt.Sprintf("https://avatars.githubusercontent.com/u/%d?v=4", uid),
			},
			Repo: repo{Name: mockRepos[rand.Intn(len(mockRepos))]},
		}
	}

	data, err := json.Marshal(records)
	if err != nil {
		slog.Error("failed to encode batch", "error", err)
		return []byte("[]")
	}
	return data
}
