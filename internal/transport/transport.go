// Package transport abstracts the real-time media gateway: an ordered,
// unreliable-on-disconnect event channel for one exam attempt. Ordering of
// events within a single connection is guaranteed by the gateway; nothing here
// re-sequences.
package transport

import (
	"context"
	"encoding/json"
	"time"
)

type EventType int

const (
	// EventPresenceJoined means the examiner agent joined the session.
	EventPresenceJoined EventType = iota
	// EventTurn is one exchange turn (either direction).
	EventTurn
	// EventResult carries the agent's grading payload, still raw.
	EventResult
	// EventClosed is always the final event on a connection.
	EventClosed
)

type Event struct {
	Type    EventType
	Speaker string
	Text    string
	At      time.Time
	Result  json.RawMessage
	Err     error // set on EventClosed when the connection dropped abnormally
}

// Conn is one live attempt's connection. Events() is closed after EventClosed
// is delivered.
type Conn interface {
	Events() <-chan Event
	Send(ctx context.Context, speaker, text string) error
	Close() error
}

// Dialer opens a connection to the media gateway using an attempt-scoped
// credential.
type Dialer interface {
	Dial(ctx context.Context, endpoint, credential string) (Conn, error)
}
