package hubbub

import (
	"encoding/json"
	"time"
)

// Stats is a point-in-time snapshot of a [Publisher]'s counters.
type Stats struct {
	// Cycles counts successful fetches, including 304 Not Modified.
	Cycles uint64

	EventsDecoded      uint64
	EventsDelivered    uint64
	DecodeFailures     uint64
	FetchFailures      uint64
	SubscriberFailures uint64

	// Subscribers is the number of registered subscriptions.
	Subscribers int

	// LastFetchAt is when the most recent successful fetch started.
	// Zero before the first one.
	LastFetchAt time.Time

	// PollInterval and EventDelay are the settings of the latest cycle.
	PollInterval time.Duration
	EventDelay   time.Duration
}

// Stats returns a snapshot of the publisher's counters.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	lastFetchAt, interval, delay := p.lastFetchAt, p.pollInterval, p.eventDelay
	p.mu.RUnlock()

	return Stats{
		Cycles:             p.cycles.Load(),
		EventsDecoded:      p.eventsDecoded.Load(),
		EventsDelivered:    p.eventsDelivered.Load(),
		DecodeFailures:     p.decodeFailures.Load(),
		FetchFailures:      p.fetchFailures.Load(),
		SubscriberFailures: p.subscriberFailures.Load(),
		Subscribers:        p.hub.Len(),
		LastFetchAt:        lastFetchAt,
		PollInterval:       interval,
		EventDelay:         delay,
	}
}

type statsJSON struct {
	Cycles              uint64     `json:"cycles"`
	EventsDecoded       uint64     `json:"events_decoded"`
	EventsDelivered     uint64     `json:"events_delivered"`
	DecodeFailures      uint64     `json:"decode_failures"`
	FetchFailures       uint64     `json:"fetch_failures"`
	SubscriberFailures  uint64     `json:"subscriber_failures"`
	Subscribers         int        `json:"subscribers"`
	LastFetchAt         *time.Time `json:"last_fetch_at"`
	PollIntervalSeconds float64    `json:"poll_interval_seconds"`
	EventDelaySeconds   float64    `json:"event_delay_seconds"`
}

// MarshalJSON encodes durations as seconds and a zero LastFetchAt as null.
func (s Stats) MarshalJSON() ([]byte, error) {
	out := statsJSON{
		Cycles:              s.Cycles,
		EventsDecoded:       s.EventsDecoded,
		EventsDelivered:     s.EventsDelivered,
		DecodeFailures:      s.DecodeFailures,
		FetchFailures:       s.FetchFailures,
		SubscriberFailures:  s.SubscriberFailures,
		Subscribers:         s.Subscribers,
		PollIntervalSeconds: s.PollInterval.Seconds(),
		EventDelaySeconds:   s.EventDelay.Seconds(),
	}
	if !s.LastFetchAt.IsZero() {
		t := s.LastFetchAt
		out.LastFetchAt = &t
	}
	return json.Marshal(out)
}
