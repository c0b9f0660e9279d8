// Package channel delivers a room's session events to one peer by polling the
// shared event log, and publishes the peer's own events to it.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/mergeclash/internal/eventlog"
)

const (
	DefaultPollInterval = time.Second
	// DefaultRecentSize bounds the set of delivered event ids kept for dedupe.
	DefaultRecentSize = 200
)

var (
	ErrStarted = errors.New("channel already started")
	ErrStopped = errors.New("channel stopped")
)

// Handler receives each poll's previously unseen events in store order. It is
// called from the poll goroutine and must not call Stop.
type Handler func(ctx context.Context, events []eventlog.Event)

type Channel struct {
	store    eventlog.Store
	room     string
	self     string
	clock    clockwork.Clock
	interval time.Duration
	limit    int
	logger   *slog.Logger
	metrics  *Metrics
	recent   *lru.Cache[string, struct{}]

	// cursor is only touched by the poll goroutine once started.
	cursor time.Time

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type Option func(*Channel)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Channel) {
		c.clock = clock
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Channel) {
		c.interval = d
	}
}

// WithLimit caps how many events a single query asks for.
func WithLimit(n int) Option {
	return func(c *Channel) {
		c.limit = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Channel) {
		c.metrics = m
	}
}

func WithRecentSize(n int) Option {
	return func(c *Channel) {
		c.recent, _ = lru.New[string, struct{}](n)
	}
}

// New returns a channel for the given room and local peer. Nothing is polled
// until Start.
func New(store eventlog.Store, roomCode, selfID string, opts ...Option) *Channel {
	c := &Channel{
		store:    store,
		room:     roomCode,
		self:     selfID,
		clock:    clockwork.NewRealClock(),
		interval: DefaultPollInterval,
		limit:    eventlog.MaxQueryLimit,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.limit = eventlog.Query{Limit: c.limit}.ClampLimit()
	if c.recent == nil {
		c.recent, _ = lru.New[string, struct{}](DefaultRecentSize)
	}
	c.logger = c.logger.With("room", roomCode, "peer", selfID)
	return c
}

// Start sets the cursor to now, so history from before activation is never
// replayed, and polls every interval until ctx is done or Stop is called.
func (c *Channel) Start(ctx context.Context, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case c.started:
		return ErrStarted
	}
	c.started = true
	c.cursor = c.clock.Now()

	ctx, c.cancel = context.WithCancel(ctx)
	go c.loop(ctx, h)
	return nil
}

// Stop ends polling and waits for the poll goroutine to exit. No handler call
// happens after Stop returns. It is safe to call more than once.
func (c *Channel) Stop() {
	c.mu.Lock()
	started := c.started
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if started {
		<-c.done
	}
}

// Done is closed once the poll goroutine has exited.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) loop(ctx context.Context, h Handler) {
	defer close(c.done)
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.poll(ctx, h)
		}
	}
}

// poll drains everything after the cursor. A failed query leaves the cursor
// where it was, so the same window is retried on the next tick.
func (c *Channel) poll(ctx context.Context, h Handler) {
	for ctx.Err() == nil {
		before := c.cursor
		events, err := c.store.Query(ctx, c.room, eventlog.Query{
			After:         c.cursor,
			ExcludeSender: c.self,
			Limit:         c.limit,
		})
		if err != nil {
			if ctx.Err() == nil {
				c.metrics.poll("error")
				c.logger.Warn("poll failed", "error", err)
			}
			return
		}
		c.metrics.poll("ok")

		var fresh []eventlog.Event
		for _, evt := range events {
			if evt.CreatedAt.After(c.cursor) {
				c.cursor = evt.CreatedAt
			}
			if evt.SenderID == c.self {
				continue
			}
			if seen, _ := c.recent.ContainsOrAdd(evt.ID, struct{}{}); seen {
				c.metrics.event("duplicate")
				continue
			}
			c.metrics.event("delivered")
			fresh = append(fresh, evt)
		}
		if len(fresh) > 0 {
			h(ctx, fresh)
		}
		if len(events) < c.limit || !c.cursor.After(before) {
			return
		}
	}
}

// Publish appends an event from the local peer. Failures are logged and
// returned; they are not retried.
func (c *Channel) Publish(ctx context.Context, kind eventlog.Kind, payload json.RawMessage) (eventlog.Event, error) {
	evt, err := c.store.Append(ctx, c.room, c.self, kind, payload)
	if err != nil {
		c.metrics.publish("error")
		c.logger.Warn("publish failed", "kind", kind, "error", err)
		return eventlog.Event{}, fmt.Errorf("publishing %s: %w", kind, err)
	}
	c.metrics.publish("ok")
	return evt, nil
}
