package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/playperu/mergeclash/internal/api"
	"github.com/playperu/mergeclash/internal/eventlog"
)

func handleAppendEvent(logger *slog.Logger, deps Deps, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		var req api.AppendEventRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.SenderID == "" || req.Kind == "" {
			writeError(w, http.StatusBadRequest, "missing senderId or kind")
			return
		}

		// The Redis log does not know about rooms.
		if _, err := deps.Rooms.GetRoom(r.Context(), code); err != nil {
			if !isClientError(err) {
				logger.Error("loading room", "room", code, "error", err)
			}
			writeStoreError(w, err)
			return
		}

		evt, err := deps.Events.Append(r.Context(), code, req.SenderID, req.Kind, req.Payload)
		if err != nil {
			if !isClientError(err) {
				logger.Error("appending event", "room", code, "kind", req.Kind, "error", err)
			}
			writeStoreError(w, err)
			return
		}
		deps.Metrics.appendedEvent(evt.Kind)
		broker.Publish(evt)
		writeJSON(w, http.StatusCreated, api.EventResponse{Event: evt})
	}
}

func handleQueryEvents(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		params := r.URL.Query()

		q := eventlog.Query{ExcludeSender: params.Get(api.ParamSenderID)}
		if s := params.Get(api.ParamAfter); s != "" {
			after, err := time.Parse(api.TimeFormat, s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
				return
			}
			q.After = after
		}
		if s := params.Get(api.ParamLimit); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			q.Limit = limit
		}

		if _, err := deps.Rooms.GetRoom(r.Context(), code); err != nil {
			if !isClientError(err) {
				logger.Error("loading room", "room", code, "error", err)
			}
			writeStoreError(w, err)
			return
		}
		events, err := deps.Events.Query(r.Context(), code, q)
		if err != nil {
			logger.Error("querying events", "room", code, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to query events")
			return
		}
		if events == nil {
			events = []eventlog.Event{}
		}
		writeJSON(w, http.StatusOK, api.EventsResponse{Events: events})
	}
}

// handleStream pushes the room's events as they are appended, as Server-Sent
// Events. It is a faster path next to polling and replays nothing.
func handleStream(logger *slog.Logger, deps Deps, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		if _, err := deps.Rooms.GetRoom(r.Context(), code); err != nil {
			writeStoreError(w, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		ch := broker.Subscribe(code)
		defer broker.Unsubscribe(code, ch)
		deps.Metrics.subscribed(1)
		defer deps.Metrics.subscribed(-1)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()
		logger.Debug("event stream opened", "room", code)

		ping := time.NewTicker(30 * time.Second)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: event\ndata: %s\n\n", data)
				flusher.Flush()
			case <-ping.C:
				fmt.Fprintf(w, ": ping\n\n")
				flusher.Flush()
			}
		}
	}
}
