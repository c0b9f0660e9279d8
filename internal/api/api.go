// Package api holds the JSON bodies exchanged between the room service and
// its clients.
package api

import (
	"encoding/json"
	"time"

	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type CreateRoomRequest struct {
	Topic           mergeclash.Topic `json:"topic"`
	DurationMinutes int              `json:"durationMinutes"`
	Nickname        string           `json:"nickname"`
}

type JoinRoomRequest struct {
	Nickname string `json:"nickname"`
}

// RoomResponse answers room creation and joins. Player is the caller.
type RoomResponse struct {
	Room   mergeclash.Room   `json:"room"`
	Player mergeclash.Player `json:"player"`
}

type StatusResponse struct {
	Room mergeclash.Room `json:"room"`
}

type SetStatusRequest struct {
	Status mergeclash.RoomStatus `json:"status"`
}

type AppendEventRequest struct {
	SenderID string          `json:"senderId"`
	Kind     eventlog.Kind   `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type EventResponse struct {
	Event eventlog.Event `json:"event"`
}

type EventsResponse struct {
	Events []eventlog.Event `json:"events"`
}

// Query parameters of GET /api/rooms/{code}/events.
const (
	ParamAfter    = "after"
	ParamSenderID = "senderId"
	ParamLimit    = "limit"
)

// TimeFormat is how the after cursor travels in a URL. It keeps nanoseconds,
// which the log uses to order events.
const TimeFormat = time.RFC3339Nano

// DurationsMinutes lists the match lengths a room can be created with.
var DurationsMinutes = []int{10, 15}
