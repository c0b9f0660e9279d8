package challenge

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

const (
	DefaultTTL = 10 * time.Minute
	// DefaultBatch is how many tickets a refresh asks for, so rooms drawing
	// fewer get different selections.
	DefaultBatch   = 50
	refreshTimeout = 2 * time.Minute
)

type entry struct {
	tickets   []mergeclash.Ticket
	fetchedAt time.Time
}

// Cache serves ticket batches per topic without ever blocking on the source.
// A miss answers from presets and fills the cache in the background; a stale
// hit answers from the cache and refreshes it in the background.
type Cache struct {
	source   Generator
	fallback Generator
	ttl      time.Duration
	batch    int
	clock    clockwork.Clock
	logger   *slog.Logger

	entries *lru.Cache[mergeclash.Topic, entry]
	flight  singleflight.Group
	wg      sync.WaitGroup

	mu  sync.Mutex
	rnd *rand.Rand
}

type CacheOption func(*Cache)

func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

func WithBatch(n int) CacheOption {
	return func(c *Cache) {
		c.batch = n
	}
}

func WithClock(clock clockwork.Clock) CacheOption {
	return func(c *Cache) {
		c.clock = clock
	}
}

func WithLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

func WithRand(r *rand.Rand) CacheOption {
	return func(c *Cache) {
		c.rnd = r
	}
}

// NewCache wraps source. A nil source serves presets only.
func NewCache(source Generator, opts ...CacheOption) *Cache {
	if source == nil {
		source = Presets{}
	}
	c := &Cache{
		source:   source,
		fallback: Presets{},
		ttl:      DefaultTTL,
		batch:    DefaultBatch,
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		rnd:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	// One entry per topic.
	c.entries, _ = lru.New[mergeclash.Topic, entry](8)
	return c
}

// Tickets returns a shuffled selection of up to count tickets for topic.
func (c *Cache) Tickets(ctx context.Context, topic mergeclash.Topic, count int) ([]mergeclash.Ticket, error) {
	if !topic.Valid() {
		return nil, ErrUnknownTopic
	}
	if e, ok := c.entries.Get(topic); ok && len(e.tickets) > 0 {
		if c.clock.Since(e.fetchedAt) > c.ttl {
			c.logger.Info("ticket cache stale, refreshing", "topic", topic)
			c.refreshAsync(topic)
		}
		return c.pick(e.tickets, count), nil
	}

	c.logger.Info("ticket cache miss, serving presets", "topic", topic)
	c.refreshAsync(topic)
	presets, err := c.fallback.Generate(ctx, topic, 0)
	if err != nil {
		return nil, err
	}
	return c.pick(presets, count), nil
}

// Refresh regenerates the cached batch for topic. Concurrent refreshes of one
// topic share a single call to the source. When the source fails or returns
// too few valid tickets the presets are cached instead.
func (c *Cache) Refresh(ctx context.Context, topic mergeclash.Topic) ([]mergeclash.Ticket, error) {
	v, err, _ := c.flight.Do(string(topic), func() (any, error) {
		tickets, err := c.source.Generate(ctx, topic, c.batch)
		if err == nil {
			tickets, err = Accept(tickets, c.batch)
		}
		if err != nil {
			c.logger.Warn("ticket generation failed, caching presets", "topic", topic, "error", err)
			if tickets, err = c.fallback.Generate(ctx, topic, 0); err != nil {
				return nil, err
			}
		}
		c.entries.Add(topic, entry{tickets: tickets, fetchedAt: c.clock.Now()})
		c.logger.Info("ticket cache refreshed", "topic", topic, "tickets", len(tickets))
		return tickets, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]mergeclash.Ticket)), nil
}

func (c *Cache) refreshAsync(topic mergeclash.Topic) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		c.Refresh(ctx, topic)
	}()
}

// Wait blocks until background refreshes have finished.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) pick(tickets []mergeclash.Ticket, count int) []mergeclash.Ticket {
	out := clone(tickets)
	c.mu.Lock()
	c.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	c.mu.Unlock()
	if count > 0 && count < len(out) {
		out = out[:count]
	}
	return out
}
