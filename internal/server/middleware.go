package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

type ctxKey int

const ctxKeyRoomCode ctxKey = iota

// roomCodeMiddleware normalizes the {code} URL parameter to upper case and
// rejects anything that is not shaped like a room code.
func roomCodeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))
		if !mergeclash.ValidRoomCode(code) {
			writeError(w, http.StatusBadRequest, "invalid room code format")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyRoomCode, code)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func roomCode(r *http.Request) string {
	return r.Context().Value(ctxKeyRoomCode).(string)
}
