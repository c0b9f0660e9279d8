package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/eventlog"
)

var (
	ErrUnknownKind = errors.New("unknown message kind")
	ErrMalformed   = errors.New("malformed message")
)

// Message is a decoded event payload. The set of implementations is closed;
// Decode and Machine.Apply switch over all of them.
type Message interface {
	Kind() eventlog.Kind
	validate() error
}

type ProgressUpdate struct {
	PlayerID      string `json:"playerId"`
	Progress      int    `json:"progress"`
	Streak        int    `json:"streak"`
	TotalCorrect  int    `json:"totalCorrect"`
	TotalWrong    int    `json:"totalWrong"`
	ConflictsHeld int    `json:"conflictsHeld"`
}

type ConflictThrow struct {
	FromPlayerID string             `json:"fromPlayerId"`
	FromNickname string             `json:"fromNickname"`
	ToPlayerID   string             `json:"toPlayerId"`
	ToNickname   string             `json:"toNickname,omitempty"`
	ConflictType conflict.Kind      `json:"conflictType"`
	Challenge    conflict.Challenge `json:"challenge"`
}

type ConflictResolve struct {
	PlayerID string `json:"playerId"`
	// ResolvedAt is in unix milliseconds.
	ResolvedAt int64 `json:"resolvedAt"`
}

// GameStart tells peers to fetch the room and start playing.
type GameStart struct{}

type Reason string

const (
	ReasonWinner  Reason = "winner"
	ReasonTimeout Reason = "timeout"
)

type GameEnd struct {
	Reason   Reason    `json:"reason"`
	WinnerID string    `json:"winnerId,omitempty"`
	Rankings []Ranking `json:"rankings"`
}

type ActivityType string

const (
	ActivityCorrectAnswer   ActivityType = "correct_answer"
	ActivityWrongAnswer     ActivityType = "wrong_answer"
	ActivityStreak          ActivityType = "streak"
	ActivityConflictThrow   ActivityType = "conflict_throw"
	ActivityConflictResolve ActivityType = "conflict_resolve"
	ActivityPlayerJoined    ActivityType = "player_joined"
	ActivityPlayerLeft      ActivityType = "player_left"
	ActivityGameStart       ActivityType = "game_start"
	ActivityGameEnd         ActivityType = "game_end"
	ActivityWin             ActivityType = "win"
)

type Activity struct {
	ActivityType ActivityType `json:"activityType"`
	Message      string       `json:"message"`
}

type PlayerJoined struct {
	PlayerID     string `json:"id"`
	Nickname     string `json:"nickname"`
	Progress     int    `json:"progress"`
	Streak       int    `json:"streak"`
	TotalCorrect int    `json:"totalCorrect"`
	TotalWrong   int    `json:"totalWrong"`
}

// PlayerLeft names the leaving player. An empty PlayerID means the sender.
type PlayerLeft struct {
	PlayerID string `json:"playerId,omitempty"`
}

type PlayerFinished struct {
	PlayerID string `json:"playerId"`
	Nickname string `json:"nickname"`
}

type CountdownStart struct {
	Seconds int `json:"seconds"`
}

type CountdownCancel struct{}

func (ProgressUpdate) Kind() eventlog.Kind  { return eventlog.KindProgressUpdate }
func (ConflictThrow) Kind() eventlog.Kind   { return eventlog.KindConflictThrow }
func (ConflictResolve) Kind() eventlog.Kind { return eventlog.KindConflictResolve }
func (GameStart) Kind() eventlog.Kind       { return eventlog.KindGameStart }
func (GameEnd) Kind() eventlog.Kind         { return eventlog.KindGameEnd }
func (Activity) Kind() eventlog.Kind        { return eventlog.KindActivity }
func (PlayerJoined) Kind() eventlog.Kind    { return eventlog.KindPlayerJoined }
func (PlayerLeft) Kind() eventlog.Kind      { return eventlog.KindPlayerLeft }
func (PlayerFinished) Kind() eventlog.Kind  { return eventlog.KindPlayerFinished }
func (CountdownStart) Kind() eventlog.Kind  { return eventlog.KindCountdownStart }
func (CountdownCancel) Kind() eventlog.Kind { return eventlog.KindCountdownCancel }

func (m ProgressUpdate) validate() error {
	if m.PlayerID == "" {
		return errors.New("missing playerId")
	}
	if m.Progress < 0 || m.Progress > 100 {
		return fmt.Errorf("progress %d out of range", m.Progress)
	}
	return nil
}

func (m ConflictThrow) validate() error {
	if m.FromPlayerID == "" || m.ToPlayerID == "" {
		return errors.New("missing player ids")
	}
	switch m.Challenge.Kind {
	case conflict.KindPuzzle, conflict.KindRetype:
	default:
		return fmt.Errorf("unknown challenge type %q", m.Challenge.Kind)
	}
	return nil
}

func (m ConflictResolve) validate() error {
	if m.PlayerID == "" {
		return errors.New("missing playerId")
	}
	return nil
}

func (GameStart) validate() error { return nil }

func (m GameEnd) validate() error {
	switch m.Reason {
	case ReasonWinner, ReasonTimeout:
		return nil
	}
	return fmt.Errorf("unknown reason %q", m.Reason)
}

func (m Activity) validate() error {
	if m.Message == "" {
		return errors.New("empty message")
	}
	return nil
}

func (m PlayerJoined) validate() error {
	if m.PlayerID == "" {
		return errors.New("missing id")
	}
	return nil
}

func (PlayerLeft) validate() error { return nil }

func (m PlayerFinished) validate() error {
	if m.PlayerID == "" {
		return errors.New("missing playerId")
	}
	return nil
}

func (m CountdownStart) validate() error {
	if m.Seconds <= 0 {
		return fmt.Errorf("countdown of %d seconds", m.Seconds)
	}
	return nil
}

func (CountdownCancel) validate() error { return nil }

// Decode turns a logged event into a Message.
func Decode(evt eventlog.Event) (Message, error) {
	switch evt.Kind {
	case eventlog.KindProgressUpdate:
		return decode[ProgressUpdate](evt)
	case eventlog.KindConflictThrow:
		return decode[ConflictThrow](evt)
	case eventlog.KindConflictResolve:
		return decode[ConflictResolve](evt)
	case eventlog.KindGameStart:
		return decode[GameStart](evt)
	case eventlog.KindGameEnd:
		return decode[GameEnd](evt)
	case eventlog.KindActivity:
		return decode[Activity](evt)
	case eventlog.KindPlayerJoined:
		return decode[PlayerJoined](evt)
	case eventlog.KindPlayerLeft:
		return decode[PlayerLeft](evt)
	case eventlog.KindPlayerFinished:
		return decode[PlayerFinished](evt)
	case eventlog.KindCountdownStart:
		return decode[CountdownStart](evt)
	case eventlog.KindCountdownCancel:
		return decode[CountdownCancel](evt)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, evt.Kind)
}

func decode[T Message](evt eventlog.Event) (Message, error) {
	var msg T
	if len(evt.Payload) > 0 {
		if err := json.Unmarshal(evt.Payload, &msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, evt.Kind, err)
		}
	}
	if err := msg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, evt.Kind, err)
	}
	return msg, nil
}

// Encode returns the wire payload of msg.
func Encode(msg Message) (json.RawMessage, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.Kind(), err)
	}
	return data, nil
}
