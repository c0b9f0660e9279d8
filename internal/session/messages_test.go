package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/eventlog"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		kind    eventlog.Kind
		payload string
		want    Message
		err     error
	}{
		{eventlog.KindProgressUpdate, `{"playerId":"p1","progress":30,"streak":2,"totalCorrect":3,"totalWrong":0,"conflictsHeld":0}`,
			ProgressUpdate{PlayerID: "p1", Progress: 30, Streak: 2, TotalCorrect: 3}, nil},
		{eventlog.KindProgressUpdate, `{"playerId":"p1","progress":130}`, nil, ErrMalformed},
		{eventlog.KindProgressUpdate, `{"playerId":`, nil, ErrMalformed},
		{eventlog.KindConflictResolve, `{"playerId":"p2","resolvedAt":1700000000000}`,
			ConflictResolve{PlayerID: "p2", ResolvedAt: 1700000000000}, nil},
		{eventlog.KindGameStart, `{}`, GameStart{}, nil},
		{eventlog.KindGameEnd, `{"reason":"draw","rankings":[]}`, nil, ErrMalformed},
		{eventlog.KindPlayerLeft, ``, PlayerLeft{}, nil},
		{eventlog.KindPlayerFinished, `{"playerId":"p3","nickname":"neo"}`, PlayerFinished{PlayerID: "p3", Nickname: "neo"}, nil},
		{eventlog.KindCountdownStart, `{"seconds":5}`, CountdownStart{Seconds: 5}, nil},
		{eventlog.KindCountdownCancel, `{}`, CountdownCancel{}, nil},
		{"sync_request", `{}`, nil, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %s", tt.kind, tt.payload), func(t *testing.T) {
			got, err := Decode(eventlog.Event{Kind: tt.kind, Payload: json.RawMessage(tt.payload)})
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("err = %v, want %v", err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConflictThrowWireFormat(t *testing.T) {
	msg := ConflictThrow{
		FromPlayerID: "p1",
		FromNickname: "trinity",
		ToPlayerID:   "p2",
		ConflictType: conflict.KindRetype,
		Challenge:    conflict.Challenge{Kind: conflict.KindRetype, Content: "// hello"},
	}
	payload, err := Encode(msg)
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatal(err)
	}
	if raw["conflictType"] != "silly_task" || raw["toPlayerId"] != "p2" {
		t.Errorf("payload = %s", payload)
	}
	challenge := raw["challenge"].(map[string]any)
	if challenge["type"] != "silly_task" || challenge["content"] != "// hello" {
		t.Errorf("challenge = %v", challenge)
	}

	got, err := Decode(eventlog.Event{Kind: msg.Kind(), Payload: payload})
	if err != nil {
		t.Fatal(err)
	}
	if got.(ConflictThrow).Challenge.Content != "// hello" {
		t.Errorf("decoded = %#v", got)
	}
}

func TestFeedKeepsNewest(t *testing.T) {
	f := NewFeed(3)
	for i := 1; i <= 5; i++ {
		f.Add(ActivityEntry{Message: fmt.Sprint(i)})
	}
	got := f.Entries()
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"5", "4", "3"} {
		if got[i].Message != want {
			t.Errorf("entry %d = %s, want %s", i, got[i].Message, want)
		}
	}
	if got[0].Seq != 5 {
		t.Errorf("seq = %d, want 5", got[0].Seq)
	}
}

func TestRank(t *testing.T) {
	players := []PlayerView{
		{ID: "c", Progress: 80, TotalCorrect: 7, TotalWrong: 1},
		{ID: "b", Progress: 80, TotalCorrect: 8, TotalWrong: 0},
		{ID: "d", Progress: 100, TotalCorrect: 6, TotalWrong: 4},
		{ID: "a", Progress: 80, TotalCorrect: 7, TotalWrong: 1},
		{ID: "e"},
	}
	rows := Rank(players)

	var order string
	for _, r := range rows {
		order += r.PlayerID
	}
	if order != "dbace" {
		t.Errorf("order = %s, want dbace", order)
	}
	if rows[0].Accuracy != 0.6 {
		t.Errorf("accuracy = %v, want 0.6", rows[0].Accuracy)
	}
	if rows[4].Accuracy != 0 {
		t.Errorf("accuracy without answers = %v, want 0", rows[4].Accuracy)
	}
}

func TestRankIsOrderIndependent(t *testing.T) {
	players := []PlayerView{
		{ID: "x", Progress: 50, TotalWrong: 2},
		{ID: "y", Progress: 50, TotalWrong: 2},
		{ID: "z", Progress: 70, TotalWrong: 5},
	}
	reversed := []PlayerView{players[2], players[1], players[0]}

	a, b := Rank(players), Rank(reversed)
	for i := range a {
		if a[i].PlayerID != b[i].PlayerID {
			t.Fatalf("row %d differs: %s vs %s", i, a[i].PlayerID, b[i].PlayerID)
		}
	}
}
