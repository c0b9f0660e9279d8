// Package eventlog defines the append-only session event log shared by all
// peers of a room: the wire envelope, the event kinds and the store contract.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies the payload carried by an event.
type Kind string

const (
	KindProgressUpdate  Kind = "progress_update"
	KindConflictThrow   Kind = "conflict_throw"
	KindConflictResolve Kind = "conflict_resolve"
	KindGameStart       Kind = "game_start"
	KindGameEnd         Kind = "game_end"
	KindActivity        Kind = "activity"
	KindPlayerJoined    Kind = "player_joined"
	KindPlayerLeft      Kind = "player_left"
	KindPlayerFinished  Kind = "player_finished"
	KindCountdownStart  Kind = "countdown_start"
	KindCountdownCancel Kind = "countdown_cancel"
)

// Kinds lists every kind accepted by the log.
var Kinds = []Kind{
	KindProgressUpdate,
	KindConflictThrow,
	KindConflictResolve,
	KindGameStart,
	KindGameEnd,
	KindActivity,
	KindPlayerJoined,
	KindPlayerLeft,
	KindPlayerFinished,
	KindCountdownStart,
	KindCountdownCancel,
}

func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is an immutable fact appended to a room's log. CreatedAt is assigned
// by the store and is strictly increasing within a room.
type Event struct {
	ID        string          `json:"id"`
	RoomCode  string          `json:"roomCode"`
	SenderID  string          `json:"senderId"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// MaxQueryLimit caps the number of events a single query returns.
const MaxQueryLimit = 50

// Query selects events of one room.
type Query struct {
	// After excludes events created at or before this instant. Zero means
	// from the beginning of the log.
	After time.Time
	// ExcludeSender drops events sent by this peer.
	ExcludeSender string
	// Limit is clamped to (0, MaxQueryLimit].
	Limit int
}

// ClampLimit returns the effective limit of q.
func (q Query) ClampLimit() int {
	if q.Limit <= 0 || q.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return q.Limit
}

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrInvalidKind  = errors.New("invalid event kind")
)

// Store is the append-only log backing a room's event channel.
type Store interface {
	Append(ctx context.Context, roomCode, senderID string, kind Kind, payload json.RawMessage) (Event, error)
	// Query returns events ordered by CreatedAt ascending.
	Query(ctx context.Context, roomCode string, q Query) ([]Event, error)
}
