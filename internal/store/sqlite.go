package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
)

// SQLite keeps rooms as JSONB documents and the event log as rows ordered by
// a per-room strictly increasing created_at in nanoseconds.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock
}

func NewSQLite(db *sql.DB, clock clockwork.Clock) *SQLite {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLite{db: db, clock: clock}
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) CreateRoom(ctx context.Context, room mergeclash.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE code = ?`, room.Code).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrRoomExists
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (code, status, data) VALUES (?, ?, jsonb(?))`,
		room.Code, room.Status, string(data),
	); err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}
	return tx.Commit()
}

func (s *SQLite) GetRoom(ctx context.Context, code string) (mergeclash.Room, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT json(data) FROM rooms WHERE code = ?`, code).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return mergeclash.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return mergeclash.Room{}, err
	}
	var room mergeclash.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return mergeclash.Room{}, fmt.Errorf("decoding room %s: %w", code, err)
	}
	return room, nil
}

// JoinRoom adds a player to a waiting room with fewer than maxPlayers players.
// Nicknames are unique per room, ignoring case.
func (s *SQLite) JoinRoom(ctx context.Context, code string, player mergeclash.Player, maxPlayers int) error {
	return s.modifyRoom(ctx, code, func(room *mergeclash.Room) error {
		if room.Status != mergeclash.RoomWaiting {
			return ErrRoomClosed
		}
		if len(room.Players) >= maxPlayers {
			return ErrRoomFull
		}
		for _, p := range room.Players {
			if strings.EqualFold(p.Nickname, player.Nickname) {
				return ErrNicknameTaken
			}
		}
		room.Players = append(room.Players, player)
		return nil
	})
}

// SetStatus moves a room to status and stamps the matching timestamp. Setting
// a status the room already has changes nothing.
func (s *SQLite) SetStatus(ctx context.Context, code string, status mergeclash.RoomStatus) (mergeclash.Room, error) {
	var out mergeclash.Room
	err := s.modifyRoom(ctx, code, func(room *mergeclash.Room) error {
		if room.Status != status {
			now := s.clock.Now().UTC()
			switch status {
			case mergeclash.RoomPlaying:
				room.StartedAt = &now
			case mergeclash.RoomFinished:
				room.FinishedAt = &now
			}
			room.Status = status
		}
		out = *room
		return nil
	})
	return out, err
}

// modifyRoom loads a room, applies fn, and saves it in a transaction.
func (s *SQLite) modifyRoom(ctx context.Context, code string, fn func(*mergeclash.Room) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var data string
	err = tx.QueryRowContext(ctx, `SELECT json(data) FROM rooms WHERE code = ?`, code).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRoomNotFound
	}
	if err != nil {
		return err
	}

	var room mergeclash.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return fmt.Errorf("decoding room %s: %w", code, err)
	}
	if err := fn(&room); err != nil {
		return err
	}

	updated, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rooms SET status = ?, data = jsonb(?) WHERE code = ?`,
		room.Status, string(updated), code,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Append logs an event. created_at is taken from the clock and bumped past the
// room's last event inside the same transaction, so it never repeats.
func (s *SQLite) Append(ctx context.Context, roomCode, senderID string, kind eventlog.Kind, payload json.RawMessage) (eventlog.Event, error) {
	if !kind.Valid() {
		return eventlog.Event{}, fmt.Errorf("%w: %q", eventlog.ErrInvalidKind, kind)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return eventlog.Event{}, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms WHERE code = ?`, roomCode).Scan(&n); err != nil {
		return eventlog.Event{}, err
	}
	if n == 0 {
		return eventlog.Event{}, ErrRoomNotFound
	}

	var last sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM game_events WHERE room_code = ?`, roomCode,
	).Scan(&last); err != nil {
		return eventlog.Event{}, err
	}
	createdAt := s.clock.Now().UnixNano()
	if last.Valid && createdAt <= last.Int64 {
		createdAt = last.Int64 + 1
	}

	evt := eventlog.Event{
		ID:        uuid.NewString(),
		RoomCode:  roomCode,
		SenderID:  senderID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Unix(0, createdAt).UTC(),
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO game_events (id, room_code, sender_id, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		evt.ID, roomCode, senderID, string(kind), string(payload), createdAt,
	); err != nil {
		return eventlog.Event{}, fmt.Errorf("inserting event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return eventlog.Event{}, err
	}
	return evt, nil
}

func (s *SQLite) Query(ctx context.Context, roomCode string, q eventlog.Query) ([]eventlog.Event, error) {
	after := int64(math.MinInt64)
	if !q.After.IsZero() {
		after = q.After.UnixNano()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_id, kind, payload, created_at FROM game_events
		 WHERE room_code = ? AND created_at > ? AND (? = '' OR sender_id != ?)
		 ORDER BY created_at
		 LIMIT ?`,
		roomCode, after, q.ExcludeSender, q.ExcludeSender, q.ClampLimit(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []eventlog.Event
	for rows.Next() {
		var (
			evt       eventlog.Event
			kind      string
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&evt.ID, &evt.SenderID, &kind, &payload, &createdAt); err != nil {
			return nil, err
		}
		evt.RoomCode = roomCode
		evt.Kind = eventlog.Kind(kind)
		evt.Payload = json.RawMessage(payload)
		evt.CreatedAt = time.Unix(0, createdAt).UTC()
		events = append(events, evt)
	}
	return events, rows.Err()
}
