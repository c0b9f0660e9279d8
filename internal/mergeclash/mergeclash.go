// Package mergeclash defines the core domain types shared by the session engine,
// the room service and its clients. It has zero external dependencies.
package mergeclash

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

type Topic string

const (
	TopicPHP      Topic = "php"
	TopicFrontend Topic = "frontend"
	TopicMix      Topic = "mix"
)

func (t Topic) Valid() bool {
	switch t {
	case TopicPHP, TopicFrontend, TopicMix:
		return true
	}
	return false
}

type TicketType string

const (
	TicketMultipleChoice TicketType = "multiple_choice"
	TicketFillInBlank    TicketType = "fill_in_blank"
	TicketDragAndDrop    TicketType = "drag_and_drop"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Answer is a ticket answer. Text answers hold a single element; drag and drop
// answers hold the ordered sequence. On the wire a single element is a plain
// string and anything else is an array.
type Answer []string

func (a Answer) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = Answer{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("answer must be a string or a list of strings: %w", err)
	}
	*a = Answer(list)
	return nil
}

// Text returns the first element, or "" for an empty answer.
func (a Answer) Text() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

type Ticket struct {
	ID            string     `json:"id"`
	Type          TicketType `json:"type"`
	Difficulty    Difficulty `json:"difficulty"`
	Topic         Topic      `json:"topic"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	CodeSnippet   string     `json:"code_snippet"`
	Options       []string   `json:"options,omitempty"`
	CorrectAnswer Answer     `json:"correct_answer"`
	Explanation   string     `json:"explanation,omitempty"`
}

// Check reports whether answer solves the ticket.
func (t Ticket) Check(answer Answer) bool {
	switch t.Type {
	case TicketMultipleChoice:
		return strings.ToUpper(strings.TrimSpace(answer.Text())) ==
			strings.ToUpper(strings.TrimSpace(t.CorrectAnswer.Text()))
	case TicketFillInBlank:
		return strings.ToLower(strings.TrimSpace(answer.Text())) ==
			strings.ToLower(strings.TrimSpace(t.CorrectAnswer.Text()))
	case TicketDragAndDrop:
		if len(answer) != len(t.CorrectAnswer) {
			return false
		}
		for i := range t.CorrectAnswer {
			if answer[i] != t.CorrectAnswer[i] {
				return false
			}
		}
		return true
	}
	return false
}

var ErrInvalidTicket = errors.New("invalid ticket")

// Validate checks the structural requirements a ticket must meet before it can
// be served to players.
func (t Ticket) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidTicket)
	case t.Title == "":
		return fmt.Errorf("%w: %s: missing title", ErrInvalidTicket, t.ID)
	case t.CodeSnippet == "":
		return fmt.Errorf("%w: %s: missing code snippet", ErrInvalidTicket, t.ID)
	case len(t.CorrectAnswer) == 0:
		return fmt.Errorf("%w: %s: missing correct answer", ErrInvalidTicket, t.ID)
	}
	switch t.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return fmt.Errorf("%w: %s: unknown difficulty %q", ErrInvalidTicket, t.ID, t.Difficulty)
	}
	switch t.Type {
	case TicketMultipleChoice:
		if len(t.Options) < 2 {
			return fmt.Errorf("%w: %s: multiple choice needs at least 2 options", ErrInvalidTicket, t.ID)
		}
		if len(t.CorrectAnswer) != 1 {
			return fmt.Errorf("%w: %s: multiple choice needs a single answer", ErrInvalidTicket, t.ID)
		}
	case TicketFillInBlank:
		if len(t.CorrectAnswer) != 1 {
			return fmt.Errorf("%w: %s: fill in blank needs a single answer", ErrInvalidTicket, t.ID)
		}
	case TicketDragAndDrop:
	default:
		return fmt.Errorf("%w: %s: unknown type %q", ErrInvalidTicket, t.ID, t.Type)
	}
	return nil
}

// HardTickets returns the subset of tickets marked hard, preserving order.
func HardTickets(tickets []Ticket) []Ticket {
	var hard []Ticket
	for _, t := range tickets {
		if t.Difficulty == DifficultyHard {
			hard = append(hard, t)
		}
	}
	return hard
}

type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomPlaying  RoomStatus = "playing"
	RoomFinished RoomStatus = "finished"
)

func (s RoomStatus) Valid() bool {
	switch s {
	case RoomWaiting, RoomPlaying, RoomFinished:
		return true
	}
	return false
}

type Player struct {
	ID           string    `json:"id"`
	Nickname     string    `json:"nickname"`
	Progress     int       `json:"progress"`
	Streak       int       `json:"streak"`
	TotalCorrect int       `json:"totalCorrect"`
	TotalWrong   int       `json:"totalWrong"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type Room struct {
	Code            string     `json:"roomCode"`
	Status          RoomStatus `json:"status"`
	Topic           Topic      `json:"topic"`
	DurationMinutes int        `json:"durationMinutes"`
	Tickets         []Ticket   `json:"tickets"`
	Players         []Player   `json:"players"`
	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// Duration returns the configured match length.
func (r Room) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const RoomCodeLength = 6

// NewRoomCode returns a random room code. I, O, 0 and 1 are left out of the
// alphabet because they are easy to misread.
func NewRoomCode() string {
	b := make([]byte, RoomCodeLength)
	max := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(b)
}

// ValidRoomCode reports whether code has the shape of a room code.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for _, c := range code {
		if !(c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// ValidNickname reports whether a trimmed nickname is 2 to 20 characters long.
func ValidNickname(nickname string) bool {
	n := len([]rune(strings.TrimSpace(nickname)))
	return n >= 2 && n <= 20
}
