package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMemStoreQuery(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := NewMemStore(clock)

	first, err := s.Append(ctx, "ROOM42", "alice", KindActivity, nil)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	// Same instant: the store still orders strictly.
	second, _ := s.Append(ctx, "ROOM42", "bob", KindActivity, nil)
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("created_at not strictly increasing: %v then %v", first.CreatedAt, second.CreatedAt)
	}
	clock.Advance(time.Second)
	third, _ := s.Append(ctx, "ROOM42", "alice", KindActivity, nil)
	s.Append(ctx, "OTHER1", "alice", KindActivity, nil)

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all", Query{}, []string{first.ID, second.ID, third.ID}},
		{"after first", Query{After: first.CreatedAt}, []string{second.ID, third.ID}},
		{"exclude sender", Query{ExcludeSender: "alice"}, []string{second.ID}},
		{"limit", Query{Limit: 1}, []string{first.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, "ROOM42", tt.q)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("event %d = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestMemStoreRejectsUnknownKind(t *testing.T) {
	s := NewMemStore(nil)
	_, err := s.Append(context.Background(), "ROOM42", "alice", "sync_request", nil)
	if !errors.Is(err, ErrInvalidKind) {
		t.Errorf("err = %v, want ErrInvalidKind", err)
	}
}

func TestQueryClampLimit(t *testing.T) {
	tests := map[int]int{0: MaxQueryLimit, -3: MaxQueryLimit, 10: 10, 500: MaxQueryLimit}
	for in, want := range tests {
		if got := (Query{Limit: in}).ClampLimit(); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
