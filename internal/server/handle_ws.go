package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

// wsWriteTimeout bounds a single push to a slow client.
const wsWriteTimeout = 5 * time.Second

// handleWS pushes the room's events as they are appended, one JSON event per
// text message. Messages from the client are ignored.
func handleWS(logger *slog.Logger, deps Deps, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := roomCode(r)
		if _, err := deps.Rooms.GetRoom(r.Context(), code); err != nil {
			writeStoreError(w, err)
			return
		}

		// Subscribe before the upgrade completes so nothing appended after the
		// client sees the handshake is missed.
		ch := broker.Subscribe(code)
		defer broker.Unsubscribe(code, ch)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		deps.Metrics.subscribed(1)
		defer deps.Metrics.subscribed(-1)

		// CloseRead cancels ctx once the client goes away.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				logger.Debug("websocket feed ended", "room", code, "error", ctx.Err())
				return
			case data := <-ch:
				wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Debug("websocket write failed", "room", code, "error", err)
					return
				}
			}
		}
	}
}
