package server

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/playperu/mergeclash/internal/api"
	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/session"
	"github.com/playperu/mergeclash/internal/store"
)

const roomCodeAttempts = 5

func handleCreateRoom(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.CreateRoomRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch {
		case !req.Topic.Valid():
			writeError(w, http.StatusBadRequest, "invalid topic, must be php, frontend or mix")
			return
		case !slices.Contains(api.DurationsMinutes, req.DurationMinutes):
			writeError(w, http.StatusBadRequest, "invalid duration, must be 10 or 15 minutes")
			return
		case !mergeclash.ValidNickname(req.Nickname):
			writeError(w, http.StatusBadRequest, "nickname must be 2-20 characters")
			return
		}

		tickets, err := deps.Tickets.Tickets(r.Context(), req.Topic, deps.TicketCount)
		if err != nil {
			logger.Error("picking tickets", "topic", req.Topic, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to prepare tickets")
			return
		}

		now := deps.Clock.Now().UTC()
		player := mergeclash.Player{
			ID:       uuid.NewString(),
			Nickname: strings.TrimSpace(req.Nickname),
			JoinedAt: now,
		}
		room := mergeclash.Room{
			Status:          mergeclash.RoomWaiting,
			Topic:           req.Topic,
			DurationMinutes: req.DurationMinutes,
			Tickets:         tickets,
			Players:         []mergeclash.Player{player},
			CreatedAt:       now,
		}

		for range roomCodeAttempts {
			room.Code = mergeclash.NewRoomCode()
			if err = deps.Rooms.CreateRoom(r.Context(), room); !errors.Is(err, store.ErrRoomExists) {
				break
			}
		}
		if err != nil {
			logger.Error("creating room", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create room")
			return
		}

		deps.Metrics.roomCreated()
		logger.Info("room created", "room", room.Code, "topic", room.Topic, "tickets", len(tickets))
		writeJSON(w, http.StatusCreated, api.RoomResponse{Room: room, Player: player})
	}
}

func handleJoin(logger *slog.Logger, deps Deps, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		var req api.JoinRoomRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !mergeclash.ValidNickname(req.Nickname) {
			writeError(w, http.StatusBadRequest, "nickname must be 2-20 characters")
			return
		}

		player := mergeclash.Player{
			ID:       uuid.NewString(),
			Nickname: strings.TrimSpace(req.Nickname),
			JoinedAt: deps.Clock.Now().UTC(),
		}
		if err := deps.Rooms.JoinRoom(r.Context(), code, player, deps.MaxPlayers); err != nil {
			if !isClientError(err) {
				logger.Error("joining room", "room", code, "error", err)
			}
			writeStoreError(w, err)
			return
		}
		room, err := deps.Rooms.GetRoom(r.Context(), code)
		if err != nil {
			logger.Error("loading room", "room", code, "error", err)
			writeStoreError(w, err)
			return
		}

		// Tell peers already in the lobby. They poll, so a failure here only
		// delays the roster until their next room fetch.
		payload, err := session.Encode(session.PlayerJoined{PlayerID: player.ID, Nickname: player.Nickname})
		if err == nil {
			var evt eventlog.Event
			if evt, err = deps.Events.Append(r.Context(), code, player.ID, eventlog.KindPlayerJoined, payload); err == nil {
				deps.Metrics.appendedEvent(evt.Kind)
				broker.Publish(evt)
			}
		}
		if err != nil {
			logger.Warn("announcing player", "room", code, "player", player.ID, "error", err)
		}

		logger.Info("player joined", "room", code, "player", player.ID, "players", len(room.Players))
		writeJSON(w, http.StatusCreated, api.RoomResponse{Room: room, Player: player})
	}
}

func handleGetStatus(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := deps.Rooms.GetRoom(r.Context(), roomCode(r))
		if err != nil {
			if !isClientError(err) {
				logger.Error("loading room", "room", roomCode(r), "error", err)
			}
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.StatusResponse{Room: room})
	}
}

func handleSetStatus(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.SetStatusRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !req.Status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}

		code := roomCode(r)
		room, err := deps.Rooms.SetStatus(r.Context(), code, req.Status)
		if err != nil {
			if !isClientError(err) {
				logger.Error("setting room status", "room", code, "error", err)
			}
			writeStoreError(w, err)
			return
		}
		logger.Info("room status set", "room", code, "status", room.Status)
		writeJSON(w, http.StatusOK, api.StatusResponse{Room: room})
	}
}

// isClientError reports whether err is the caller's fault and not worth an
// error log.
func isClientError(err error) bool {
	return errors.Is(err, store.ErrRoomNotFound) ||
		errors.Is(err, store.ErrRoomFull) ||
		errors.Is(err, store.ErrRoomClosed) ||
		errors.Is(err, store.ErrNicknameTaken) ||
		errors.Is(err, eventlog.ErrInvalidKind)
}
