package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/hubbub"
)

func TestBuildOptions_Defaults(t *testing.T) {
	opts, err := BuildOptions(Default())
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	p, err := hubbub.New(opts...)
	if err != nil {
		t.Fatalf("hubbub.New() error = %v", err)
	}
	defer p.Close()

	if p.FeedURL() != hubbub.DefaultFeedURL {
		t.Errorf("FeedURL() = %q, want %q", p.FeedURL(), hubbub.DefaultFeedURL)
	}
}

func TestBuildOptions_AllFields(t *testing.T) {
	cfg := &Config{
		FeedURL:             "http://localhost:9000/events",
		Timeout:             Duration(2 * time.Second),
		DefaultPollInterval: Duration(5 * time.Second),
		MinEventDelay:       Duration(10 * time.Millisecond),
		FatalFetchErrors:    true,
		Headers:             map[string]string{"Authorization": "Bearer t"},
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	// feed URL, fatal flag, timeout, interval, delay, headers
	if len(opts) != 6 {
		t.Errorf("len(opts) = %d, want 6", len(opts))
	}

	p, err := hubbub.New(opts...)
	if err != nil {
		t.Fatalf("hubbub.New() error = %v", err)
	}
	defer p.Close()

	if p.FeedURL() != cfg.FeedURL {
		t.Errorf("FeedURL() = %q, want %q", p.FeedURL(), cfg.FeedURL)
	}
}

func TestBuildOptions_InvalidValuesRejectedByNew(t *testing.T) {
	cfg := &Config{FeedURL: "ftp://example.com", Timeout: Duration(time.Second)}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}
	if _, err := hubbub.New(opts...); err == nil {
		t.Error("hubbub.New() expected error for ftp feed URL")
	}
}

func TestBuildOptions_Nil(t *testing.T) {
	if _, err := BuildOptions(nil); err == nil {
		t.Error("BuildOptions(nil) expected error")
	}
}

func TestConsoleKinds(t *testing.T) {
	kinds, err := ConsoleKinds(&Config{ConsoleKinds: []string{"PushEvent", "WatchEvent"}})
	if err != nil {
		t.Fatalf("ConsoleKinds() error = %v", err)
	}
	if len(kinds) != 2 || kinds[0] != hubbub.KindPush || kinds[1] != hubbub.KindWatch {
		t.Errorf("ConsoleKinds() = %v, want [PushEvent WatchEvent]", kinds)
	}

	if _, err := ConsoleKinds(&Config{ConsoleKinds: []string{"Nope"}}); err == nil {
		t.Error("ConsoleKinds() expected error for unknown kind")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&Config{LogLevel: "info", LogFormat: "json"}, &buf)
		if err != nil {
			t.Fatalf("NewLogger() error = %v", err)
		}
		logger.Debug("hidden")
		logger.Info("shown", "feed_url", "http://x")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("log output is not a single JSON entry: %q", buf.String())
		}
		if entry["msg"] != "shown" || entry["feed_url"] != "http://x" {
			t.Errorf("entry = %v", entry)
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger(&Config{LogLevel: "debug", LogFormat: "text"}, &buf)
		if err != nil {
			t.Fatalf("NewLogger() error = %v", err)
		}
		logger.Debug("visible")
		if !strings.Contains(buf.String(), "msg=visible") {
			t.Errorf("output = %q, want text handler with debug level", buf.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if _, err := NewLogger(&Config{LogLevel: "info", LogFormat: "xml"}, &bytes.Buffer{}); err == nil {
			t.Error("NewLogger() expected error for xml format")
		}
		if _, err := NewLogger(&Config{LogLevel: "loud"}, &bytes.Buffer{}); err == nil {
			t.Error("NewLogger() expected error for unknown level")
		}
	})
}
