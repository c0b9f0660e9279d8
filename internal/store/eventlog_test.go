package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/playperu/mergeclash/internal/eventlog"
)

func eventIDs(events []eventlog.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

// testEventLog runs the behavior every event log backend shares against an
// empty log for room.
func testEventLog(t *testing.T, s eventlog.Store, room string) {
	t.Helper()
	ctx := context.Background()

	var logged []eventlog.Event
	for i, sender := range []string{"a", "b", "a", "c", "b"} {
		evt, err := s.Append(ctx, room, sender, eventlog.KindActivity, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if evt.ID == "" || evt.RoomCode != room || evt.SenderID != sender {
			t.Fatalf("append %d returned %+v", i, evt)
		}
		if i > 0 && !evt.CreatedAt.After(logged[i-1].CreatedAt) {
			t.Fatalf("created_at %v not after %v", evt.CreatedAt, logged[i-1].CreatedAt)
		}
		logged = append(logged, evt)
	}

	tests := []struct {
		name string
		q    eventlog.Query
		want []eventlog.Event
	}{
		{"everything", eventlog.Query{}, logged},
		{"after cursor", eventlog.Query{After: logged[1].CreatedAt}, logged[2:]},
		{"after last", eventlog.Query{After: logged[4].CreatedAt}, nil},
		{"exclude sender", eventlog.Query{ExcludeSender: "a"}, []eventlog.Event{logged[1], logged[3], logged[4]}},
		{"limit", eventlog.Query{ExcludeSender: "b", Limit: 2}, []eventlog.Event{logged[0], logged[2]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, room, tt.q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if !slices.Equal(eventIDs(got), eventIDs(tt.want)) {
				t.Errorf("got %v, want %v", eventIDs(got), eventIDs(tt.want))
			}
		})
	}

	got, err := s.Query(ctx, room, eventlog.Query{Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if string(got[0].Payload) != `{"n":0}` || got[0].Kind != eventlog.KindActivity || !got[0].CreatedAt.Equal(logged[0].CreatedAt) {
		t.Errorf("stored event = %+v, want %+v", got[0], logged[0])
	}

	if _, err := s.Append(ctx, room, "a", eventlog.Kind("chat"), nil); !errors.Is(err, eventlog.ErrInvalidKind) {
		t.Errorf("unknown kind: err = %v, want ErrInvalidKind", err)
	}
	empty, err := s.Append(ctx, room, "a", eventlog.KindGameStart, nil)
	if err != nil {
		t.Fatalf("append without payload: %v", err)
	}
	if string(empty.Payload) != `{}` {
		t.Errorf("payload = %s, want {}", empty.Payload)
	}
}
