package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/playperu/mergeclash/internal/eventlog"
)

const (
	streamPrefix = "mergeclash:events:"
	// DefaultStreamTTL is how long a room's stream outlives its last append.
	DefaultStreamTTL = 24 * time.Hour
)

var errBadStreamID = errors.New("malformed stream id")

// Redis keeps each room's event log in a Redis stream. The stream entry id
// doubles as the event timestamp: milliseconds plus the sequence number as
// nanoseconds. Redis assigns ids in increasing order, so timestamps never
// repeat within a room.
type Redis struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedis(rdb redis.Cmdable, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultStreamTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

func streamKey(roomCode string) string {
	return streamPrefix + roomCode
}

// streamTime maps a stream id such as "1700000000000-3" to an instant.
func streamTime(id string) (time.Time, error) {
	msPart, seqPart, ok := strings.Cut(id, "-")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", errBadStreamID, id)
	}
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errBadStreamID, id)
	}
	seq, err := strconv.ParseInt(seqPart, 10, 64)
	if err != nil || seq >= int64(time.Millisecond) {
		return time.Time{}, fmt.Errorf("%w: %q", errBadStreamID, id)
	}
	return time.UnixMilli(ms).Add(time.Duration(seq)).UTC(), nil
}

// streamID is the inverse of streamTime.
func streamID(t time.Time) string {
	ms := t.UnixMilli()
	seq := t.Sub(time.UnixMilli(ms))
	return fmt.Sprintf("%d-%d", ms, seq.Nanoseconds())
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Append(ctx context.Context, roomCode, senderID string, kind eventlog.Kind, payload json.RawMessage) (eventlog.Event, error) {
	if !kind.Valid() {
		return eventlog.Event{}, fmt.Errorf("%w: %q", eventlog.ErrInvalidKind, kind)
	}
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	evt := eventlog.Event{
		ID:       uuid.NewString(),
		RoomCode: roomCode,
		SenderID: senderID,
		Kind:     kind,
		Payload:  payload,
	}
	key := streamKey(roomCode)

	pipe := r.rdb.TxPipeline()
	add := pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]any{
			"id":      evt.ID,
			"sender":  senderID,
			"kind":    string(kind),
			"payload": string(payload),
		},
	})
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return eventlog.Event{}, fmt.Errorf("appending to %s: %w", key, err)
	}

	createdAt, err := streamTime(add.Val())
	if err != nil {
		return eventlog.Event{}, err
	}
	evt.CreatedAt = createdAt
	return evt, nil
}

// Query pages through the stream until it has q's limit of events from
// senders other than q.ExcludeSender, or the stream ends.
func (r *Redis) Query(ctx context.Context, roomCode string, q eventlog.Query) ([]eventlog.Event, error) {
	limit := q.ClampLimit()
	start := "-"
	if !q.After.IsZero() {
		start = "(" + streamID(q.After)
	}
	key := streamKey(roomCode)

	var events []eventlog.Event
	for len(events) < limit {
		msgs, err := r.rdb.XRangeN(ctx, key, start, "+", int64(limit)).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", key, err)
		}
		for _, msg := range msgs {
			start = "(" + msg.ID
			evt, err := decodeEntry(roomCode, msg)
			if err != nil {
				return nil, err
			}
			if q.ExcludeSender != "" && evt.SenderID == q.ExcludeSender {
				continue
			}
			events = append(events, evt)
			if len(events) == limit {
				break
			}
		}
		if len(msgs) < limit {
			break
		}
	}
	return events, nil
}

func decodeEntry(roomCode string, msg redis.XMessage) (eventlog.Event, error) {
	createdAt, err := streamTime(msg.ID)
	if err != nil {
		return eventlog.Event{}, err
	}
	field := func(name string) string {
		s, _ := msg.Values[name].(string)
		return s
	}
	evt := eventlog.Event{
		ID:        field("id"),
		RoomCode:  roomCode,
		SenderID:  field("sender"),
		Kind:      eventlog.Kind(field("kind")),
		Payload:   json.RawMessage(field("payload")),
		CreatedAt: createdAt,
	}
	if evt.ID == "" {
		evt.ID = msg.ID
	}
	return evt, nil
}
