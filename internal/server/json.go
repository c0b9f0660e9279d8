package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/playperu/mergeclash/internal/api"
	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/store"
)

// maxBody caps request bodies. Event payloads are small JSON documents.
const maxBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

// writeStoreError maps store failures to responses. Anything unexpected is
// a 500 and the caller is expected to have logged it.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, "room not found")
	case errors.Is(err, store.ErrNicknameTaken):
		writeError(w, http.StatusConflict, "nickname already taken in this room")
	case errors.Is(err, store.ErrRoomFull):
		writeError(w, http.StatusBadRequest, "room is full")
	case errors.Is(err, store.ErrRoomClosed):
		writeError(w, http.StatusBadRequest, "game has already started")
	case errors.Is(err, eventlog.ErrInvalidKind):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
