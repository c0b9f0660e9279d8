package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/mergeclash/internal/api"
	healthpkg "github.com/playperu/mergeclash/internal/handler/health"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

// Request shapes for documentation only; handlers read the api types.

type roomPath struct {
	Code string `path:"code" description:"Six character room code."`
}

type joinDoc struct {
	Code     string `path:"code"`
	Nickname string `json:"nickname"`
}

type setStatusDoc struct {
	Code   string                `path:"code"`
	Status mergeclash.RoomStatus `json:"status" enum:"waiting,playing,finished"`
}

type appendEventDoc struct {
	Code     string          `path:"code"`
	SenderID string          `json:"senderId"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

type queryEventsDoc struct {
	Code     string `path:"code"`
	After    string `query:"after" description:"Only events created after this RFC 3339 timestamp."`
	SenderID string `query:"senderId" description:"Leave out events sent by this player."`
	Limit    int    `query:"limit" description:"At most this many events, capped at 50."`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "MergeClash API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Room registry and shared event log for MergeClash sessions.")

	// POST /api/rooms
	createRoom, _ := r.NewOperationContext(http.MethodPost, "/api/rooms")
	createRoom.SetSummary("Create room")
	createRoom.SetDescription("Creates a waiting room with its tickets and joins the creator as the first player.")
	createRoom.AddReqStructure(api.CreateRoomRequest{})
	createRoom.AddRespStructure(api.RoomResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	createRoom.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createRoom)

	// POST /api/rooms/{code}/join
	join, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/join")
	join.SetSummary("Join room")
	join.SetDescription("Adds a player to a waiting room and announces them with a player_joined event.")
	join.AddReqStructure(joinDoc{})
	join.AddRespStructure(api.RoomResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	join.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	join.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	join.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(join)

	// GET /api/rooms/{code}/status
	getStatus, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/status")
	getStatus.SetSummary("Get room")
	getStatus.SetDescription("Returns the room with its tickets and players.")
	getStatus.AddReqStructure(roomPath{})
	getStatus.AddRespStructure(api.StatusResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getStatus.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getStatus)

	// PATCH /api/rooms/{code}/status
	setStatus, _ := r.NewOperationContext(http.MethodPatch, "/api/rooms/{code}/status")
	setStatus.SetSummary("Set room status")
	setStatus.SetDescription("Moves the room to waiting, playing or finished. Repeating the current status is a no-op.")
	setStatus.AddReqStructure(setStatusDoc{})
	setStatus.AddRespStructure(api.StatusResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	setStatus.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	setStatus.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(setStatus)

	// POST /api/rooms/{code}/events
	appendEvent, _ := r.NewOperationContext(http.MethodPost, "/api/rooms/{code}/events")
	appendEvent.SetSummary("Append event")
	appendEvent.SetDescription("Appends an event to the room log. The server assigns id and createdAt.")
	appendEvent.AddReqStructure(appendEventDoc{})
	appendEvent.AddRespStructure(api.EventResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	appendEvent.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	appendEvent.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(appendEvent)

	// GET /api/rooms/{code}/events
	queryEvents, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/events")
	queryEvents.SetSummary("Poll events")
	queryEvents.SetDescription("Returns events in creation order.")
	queryEvents.AddReqStructure(queryEventsDoc{})
	queryEvents.AddRespStructure(api.EventsResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	queryEvents.AddRespStructure(api.ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(queryEvents)

	// GET /api/rooms/{code}/stream
	stream, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/stream")
	stream.SetSummary("Event stream")
	stream.SetDescription("Server-Sent Events feed of events appended from now on.")
	stream.AddReqStructure(roomPath{})
	stream.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(stream)

	// GET /api/rooms/{code}/ws
	ws, _ := r.NewOperationContext(http.MethodGet, "/api/rooms/{code}/ws")
	ws.SetSummary("Event WebSocket")
	ws.SetDescription("Upgrades to a WebSocket that receives each appended event as a JSON text message.")
	ws.AddReqStructure(roomPath{})
	ws.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(ws)

	// GET /healthz
	health, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	health.SetSummary("Health check")
	health.SetDescription("Runs the dependency checks. Any failed check makes the response a 503.")
	health.AddRespStructure(healthpkg.Report{}, openapi.WithHTTPStatus(http.StatusOK))
	health.AddRespStructure(healthpkg.Report{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(health)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
