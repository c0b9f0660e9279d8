package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemStore is an in-process Store. It is used by tests and local simulations
// where peers share one address space.
type MemStore struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	events map[string][]Event

	failAppend error
	failQuery  error
}

func NewMemStore(clock clockwork.Clock) *MemStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemStore{
		clock:  clock,
		events: make(map[string][]Event),
	}
}

func (s *MemStore) Append(_ context.Context, roomCode, senderID string, kind Kind, payload json.RawMessage) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAppend != nil {
		return Event{}, s.failAppend
	}
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	createdAt := s.clock.Now()
	log := s.events[roomCode]
	if n := len(log); n > 0 && !createdAt.After(log[n-1].CreatedAt) {
		createdAt = log[n-1].CreatedAt.Add(time.Nanosecond)
	}
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	evt := Event{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		SenderID:  senderID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: createdAt,
	}
	s.events[roomCode] = append(log, evt)
	return evt, nil
}

func (s *MemStore) Query(_ context.Context, roomCode string, q Query) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failQuery != nil {
		return nil, s.failQuery
	}

	limit := q.ClampLimit()
	var out []Event
	for _, evt := range s.events[roomCode] {
		if !q.After.IsZero() && !evt.CreatedAt.After(q.After) {
			continue
		}
		if q.ExcludeSender != "" && evt.SenderID == q.ExcludeSender {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// SetFailure makes subsequent Append and Query calls return the given errors
// instead of touching the log. Nil clears a failure.
func (s *MemStore) SetFailure(appendErr, queryErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAppend = appendErr
	s.failQuery = queryErr
}

// Inject appends a fully formed event, bypassing id and timestamp assignment.
// Tests use it to replay the same event id twice.
func (s *MemStore) Inject(evt Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.RoomCode] = append(s.events[evt.RoomCode], evt)
}

// Len returns the number of events logged for a room.
func (s *MemStore) Len(roomCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[roomCode])
}

// Events returns a copy of a room's log.
func (s *MemStore) Events(roomCode string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events[roomCode]...)
}
