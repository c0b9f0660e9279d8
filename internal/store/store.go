// Package store persists rooms and room event logs. Rooms always live in
// SQLite; the event log lives in SQLite or in Redis Streams.
package store

import (
	"errors"

	"github.com/playperu/mergeclash/internal/eventlog"
)

var (
	ErrRoomNotFound  = eventlog.ErrRoomNotFound
	ErrRoomExists    = errors.New("room already exists")
	ErrRoomFull      = errors.New("room is full")
	ErrRoomClosed    = errors.New("room is not accepting players")
	ErrNicknameTaken = errors.New("nickname already taken")
)
