package hubbub

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Event is a single activity decoded from the feed.
//
// Event is immutable after creation via [Decode] or [NewEvent]. All fields
// are private with getter methods; every Event obtained from this package
// has a valid kind, an absolute avatar URL and a non-empty repository name.
type Event struct {
	kind        Kind
	actorAvatar *url.URL
	repository  string
}

// NewEvent creates an [Event] after validating every field.
//
// Returns a [*DecodeError] wrapping [ErrUnknownEventKind] if kind is not a
// declared kind, or [ErrMalformedRecord] if the avatar URL is not an absolute
// URL with a host or the repository is empty.
func NewEvent(kind Kind, avatarURL, repository string) (Event, error) {
	if !kind.Valid() {
		return Event{}, &DecodeError{Field: "type", Err: fmt.Errorf("%w: %d", ErrUnknownEventKind, uint8(kind))}
	}

	avatar, err := parseAvatarURL(avatarURL)
	if err != nil {
		return Event{}, &DecodeError{Field: "actor.avatar_url", Err: err}
	}

	if repository == "" {
		return Event{}, &DecodeError{Field: "repo.name", Err: fmt.Errorf("%w: empty", ErrMalformedRecord)}
	}

	return Event{kind: kind, actorAvatar: avatar, repository: repository}, nil
}

// Kind returns the event category.
func (e Event) Kind() Kind {
	return e.kind
}

// ActorAvatar returns a copy of the originating actor's avatar URL.
// Returns nil for the zero Event.
func (e Event) ActorAvatar() *url.URL {
	if e.actorAvatar == nil {
		return nil
	}
	cp := *e.actorAvatar
	return &cp
}

// Repository returns the "owner/name" of the repository the event occurred on.
func (e Event) Repository() string {
	return e.repository
}

// String renders the event as "Kind:repository", e.g. "PushEvent:octo/repo".
func (e Event) String() string {
	return e.kind.String() + ":" + e.repository
}

// eventJSON is the wire representation used by MarshalJSON.
type eventJSON struct {
	Kind        Kind   `json:"kind"`
	ActorAvatar string `json:"actor_avatar"`
	Repository  string `json:"repository"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	avatar := ""
	if e.actorAvatar != nil {
		avatar = e.actorAvatar.String()
	}
	return json.Marshal(eventJSON{
		Kind:        e.kind,
		ActorAvatar: avatar,
		Repository:  e.repository,
	})
}

// Decode parses one raw feed record into an [Event].
//
// The record must be a JSON object carrying a known "type" tag, an
// "actor" object with an "avatar_url" string and a "repo" object with a
// "name" string. Other fields are ignored.
//
// Decode is all-or-nothing: on failure it returns the zero Event and a
// [*DecodeError] wrapping [ErrUnknownEventKind] or [ErrMalformedRecord].
// The type tag is checked first, so a record with an unknown tag reports
// [ErrUnknownEventKind] even if other fields are also broken.
func Decode(raw []byte) (Event, error) {
	var record map[string]json.RawMessage
	if err := json.Unmarshal(raw, &record); err != nil {
		return Event{}, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMalformedRecord, err)}
	}
	if record == nil {
		return Event{}, &DecodeError{Err: fmt.Errorf("%w: record is null", ErrMalformedRecord)}
	}

	tag, err := stringField(record, "type")
	if err != nil {
		return Event{}, &DecodeError{Field: "type", Err: err}
	}
	kind, err := ParseKind(tag)
	if err != nil {
		return Event{}, &DecodeError{Field: "type", Err: err}
	}

	actor, err := objectField(record, "actor")
	if err != nil {
		return Event{}, &DecodeError{Field: "actor", Err: err}
	}
	avatarURL, err := stringField(actor, "avatar_url")
	if err != nil {
		return Event{}, &DecodeError{Field: "actor.avatar_url", Err: err}
	}

	repo, err := objectField(record, "repo")
	if err != nil {
		return Event{}, &DecodeError{Field: "repo", Err: err}
	}
	name, err := stringField(repo, "name")
	if err != nil {
		return Event{}, &DecodeError{Field: "repo.name", Err: err}
	}

	return NewEvent(kind, avatarURL, name)
}

// stringField extracts a required, non-empty string member.
func stringField(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("%w: missing", ErrMalformedRecord)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: not a string", ErrMalformedRecord)
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedRecord)
	}
	return s, nil
}

// objectField extracts a required nested object member.
func objectField(obj map[string]json.RawMessage, key string) (map[string]json.RawMessage, error) {
	raw, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("%w: missing", ErrMalformedRecord)
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil || nested == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedRecord)
	}
	return nested, nil
}

// parseAvatarURL requires an absolute URL with a host.
func parseAvatarURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedRecord)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: url %q must be absolute", ErrMalformedRecord, raw)
	}
	return u, nil
}
