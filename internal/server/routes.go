package server

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

// Rooms is the room registry.
type Rooms interface {
	CreateRoom(ctx context.Context, room mergeclash.Room) error
	GetRoom(ctx context.Context, code string) (mergeclash.Room, error)
	JoinRoom(ctx context.Context, code string, player mergeclash.Player, maxPlayers int) error
	SetStatus(ctx context.Context, code string, status mergeclash.RoomStatus) (mergeclash.Room, error)
}

// Tickets picks the tickets a new room is played with.
type Tickets interface {
	Tickets(ctx context.Context, topic mergeclash.Topic, count int) ([]mergeclash.Ticket, error)
}

type Deps struct {
	Rooms       Rooms
	Events      eventlog.Store
	Tickets     Tickets
	Metrics     *Metrics
	Clock       clockwork.Clock
	MaxPlayers  int
	TicketCount int
}

// Routes mounts the room and event API along with its documentation.
func Routes(logger *slog.Logger, deps Deps) func(chi.Router) {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	broker := NewBroker()

	return func(r chi.Router) {
		r.Get("/openapi.json", handleOpenAPI())
		r.Mount("/docs", v5emb.New("MergeClash API", "/openapi.json", "/docs"))

		r.Post("/api/rooms", handleCreateRoom(logger, deps))
		r.Route("/api/rooms/{code}", func(r chi.Router) {
			r.Use(roomCodeMiddleware)
			r.Post("/join", handleJoin(logger, deps, broker))
			r.Get("/status", handleGetStatus(logger, deps))
			r.Patch("/status", handleSetStatus(logger, deps))
			r.Post("/events", handleAppendEvent(logger, deps, broker))
			r.Get("/events", handleQueryEvents(logger, deps))
			r.Get("/stream", handleStream(logger, deps, broker))
			r.Get("/ws", handleWS(logger, deps, broker))
		})
	}
}
