package hubbub

import (
	"encoding/json"
	"time"
)

// Sighting is the most recent event of one kind and when it was published.
type Sighting struct {
	Event  Event
	SeenAt time.Time
}

// MarshalJSON encodes the event fields alongside seen_at.
func (s Sighting) MarshalJSON() ([]byte, error) {
	var avatar string
	if u := s.Event.ActorAvatar(); u != nil {
		avatar = u.String()
	}
	return json.Marshal(struct {
		eventJSON
		SeenAt time.Time `json:"seen_at"`
	}{
		eventJSON: eventJSON{
			Kind:        s.Event.Kind(),
			ActorAvatar: avatar,
			Repository:  s.Event.Repository(),
		},
		SeenAt: s.SeenAt,
	})
}

// Latest returns the most recent event of every kind seen so far, ordered
// by kind name. Kinds never seen are absent.
func (p *Publisher) Latest() []Sighting {
	entries := p.latest.GetAll()
	out := make([]Sighting, len(entries))
	for i, e := range entries {
		out[i] = Sighting{Event: e.Value, SeenAt: e.UpdatedAt}
	}
	return out
}

// LatestOf returns the most recent event of kind k, if any.
func (p *Publisher) LatestOf(k Kind) (Sighting, bool) {
	e, ok := p.latest.Get(k.String())
	if !ok {
		return Sighting{}, false
	}
	return Sighting{Event: e.Value, SeenAt: e.UpdatedAt}, true
}
