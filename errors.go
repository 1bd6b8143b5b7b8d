package hubbub

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownEventKind indicates a record whose type tag is not a known [Kind].
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrMalformedRecord indicates a record with a missing or malformed required field.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrFetchFailed indicates the feed could not be fetched or its response
	// could not be read as a batch of records.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrSubscriberFailed indicates a subscriber returned an error or panicked
	// while handling an event.
	ErrSubscriberFailed = errors.New("subscriber failed")

	// ErrClosed is returned by operations on a [Publisher] after Close.
	ErrClosed = errors.New("publisher closed")

	// ErrAlreadyRunning is returned by [Publisher.Run] while the poll loop is
	// already active.
	ErrAlreadyRunning = errors.New("publisher already running")
)

// DecodeError describes why a single feed record could not become an [Event].
//
// Err is always [ErrUnknownEventKind] or [ErrMalformedRecord] (possibly
// wrapped), so callers can classify failures with errors.Is.
type DecodeError struct {
	// Field is the dotted path of the offending field, e.g. "actor.avatar_url".
	// Empty when the record as a whole is unreadable.
	Field string

	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("decode record: %v", e.Err)
	}
	return fmt.Sprintf("decode record: %s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FetchError describes a failed poll of the feed.
type FetchError struct {
	URL string

	// StatusCode is the HTTP status returned by the feed, or zero if the
	// request failed before a response was received.
	StatusCode int

	Err error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrFetchFailed].
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// SubscriberError describes a failure raised by one subscriber.
type SubscriberError struct {
	SubscriptionID string
	Err            error
}

// Error implements the error interface.
func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber %s: %v", e.SubscriptionID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *SubscriberError) Unwrap() error {
	return e.Err
}

// Is reports whether target is [ErrSubscriberFailed].
func (e *SubscriberError) Is(target error) bool {
	return target == ErrSubscriberFailed
}
