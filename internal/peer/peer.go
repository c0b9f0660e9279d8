// Package peer runs one player's side of a match: it owns a session.Machine on
// a single goroutine and feeds it polled events, clock ticks and local actions.
// Outbound messages are applied locally first and published afterwards.
package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/mergeclash/internal/channel"
	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/session"
)

var (
	ErrNotRunning = errors.New("peer not running")
	ErrNotHost    = errors.New("only the host can do that")
)

// Registry is the room service as seen by a peer.
type Registry interface {
	GetRoom(ctx context.Context, code string) (mergeclash.Room, error)
	SetStatus(ctx context.Context, code string, status mergeclash.RoomStatus) error
}

type Config struct {
	RoomCode string
	PlayerID string
	Nickname string
	// Host peers may start the countdown and the game.
	Host bool
}

const (
	DefaultTickInterval = time.Second
	fetchAttempts       = 5
)

type Peer struct {
	cfg      Config
	store    eventlog.Store
	registry Registry
	clock    clockwork.Clock
	logger   *slog.Logger
	tick     time.Duration
	chOpts   []channel.Option
	gen      *conflict.Generator

	machine *session.Machine
	channel *channel.Channel

	inbound chan []eventlog.Event
	rooms   chan mergeclash.Room
	actions chan func()
	queue   *outbox

	snapshot  atomic.Pointer[session.Snapshot]
	over      chan struct{}
	overOnce  sync.Once
	launching bool

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	bg      sync.WaitGroup
}

type Option func(*Peer)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Peer) {
		p.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Peer) {
		p.logger = logger
	}
}

// WithTickInterval sets how often the match clock advances by one second.
func WithTickInterval(d time.Duration) Option {
	return func(p *Peer) {
		p.tick = d
	}
}

// WithChannelOptions passes options through to the event channel.
func WithChannelOptions(opts ...channel.Option) Option {
	return func(p *Peer) {
		p.chOpts = append(p.chOpts, opts...)
	}
}

func WithGenerator(gen *conflict.Generator) Option {
	return func(p *Peer) {
		p.gen = gen
	}
}

func New(store eventlog.Store, registry Registry, cfg Config, opts ...Option) *Peer {
	p := &Peer{
		cfg:      cfg,
		store:    store,
		registry: registry,
		clock:    clockwork.NewRealClock(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		tick:     DefaultTickInterval,
		inbound:  make(chan []eventlog.Event),
		rooms:    make(chan mergeclash.Room),
		actions:  make(chan func()),
		queue:    newOutbox(),
		over:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	base := p.logger
	p.logger = p.logger.With("room", cfg.RoomCode, "player", cfg.PlayerID)

	machineOpts := []session.Option{session.WithClock(p.clock)}
	if p.gen != nil {
		machineOpts = append(machineOpts, session.WithGenerator(p.gen))
	}
	p.machine = session.New(cfg.PlayerID, cfg.Nickname, machineOpts...)
	p.channel = channel.New(store, cfg.RoomCode, cfg.PlayerID,
		append([]channel.Option{channel.WithClock(p.clock), channel.WithLogger(base)}, p.chOpts...)...)
	p.refresh()
	return p
}

// Run drives the peer until ctx is done or Stop is called. Messages still
// queued at that point are flushed before it returns.
func (p *Peer) Run(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.stopped:
		p.mu.Unlock()
		return nil
	case p.running:
		p.mu.Unlock()
		return errors.New("peer already running")
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()
	defer close(p.done)
	defer p.cancel()

	if err := p.channel.Start(ctx, p.deliver); err != nil {
		return fmt.Errorf("starting channel: %w", err)
	}
	defer p.channel.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(ctx) })
	g.Go(func() error { return p.publisher(ctx) })
	p.fetchRoom(ctx)

	err := g.Wait()
	p.bg.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop ends Run and waits for it to return. It is safe to call more than once.
func (p *Peer) Stop() {
	p.mu.Lock()
	running := p.running
	p.stopped = true
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
	if running {
		<-p.done
	}
}

// Leave announces that the local player is leaving and stops the peer.
func (p *Peer) Leave(ctx context.Context) error {
	payload, err := session.Encode(session.PlayerLeft{PlayerID: p.cfg.PlayerID})
	if err != nil {
		return err
	}
	_, err = p.channel.Publish(ctx, eventlog.KindPlayerLeft, payload)
	p.Stop()
	return err
}

// GameOver is closed once the peer has a final result.
func (p *Peer) GameOver() <-chan struct{} { return p.over }

// Snapshot returns the view as of the last processed step.
func (p *Peer) Snapshot() session.Snapshot {
	return *p.snapshot.Load()
}

func (p *Peer) deliver(ctx context.Context, events []eventlog.Event) {
	select {
	case p.inbound <- events:
	case <-ctx.Done():
	}
}

func (p *Peer) loop(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case events := <-p.inbound:
			p.applyBatch(ctx, events)
		case room := <-p.rooms:
			p.enterRoom(room)
		case <-ticker.Chan():
			p.emit(p.machine.Tick())
			p.maybeLaunch(ctx)
		case act := <-p.actions:
			act()
		}
		p.refresh()
	}
}

func (p *Peer) applyBatch(ctx context.Context, events []eventlog.Event) {
	for _, evt := range events {
		msg, err := session.Decode(evt)
		if err != nil {
			p.logger.Warn("skipping event", "id", evt.ID, "kind", evt.Kind, "error", err)
			continue
		}
		if err := p.machine.Apply(evt.SenderID, msg); err != nil {
			p.logger.Warn("skipping event", "id", evt.ID, "kind", evt.Kind, "error", err)
			continue
		}
		if _, ok := msg.(session.GameStart); ok {
			p.fetchRoom(ctx)
		}
	}
	p.emit(p.machine.Evaluate())
}

func (p *Peer) enterRoom(room mergeclash.Room) {
	phase := p.machine.Phase()
	if room.Status != mergeclash.RoomPlaying || (phase != session.PhaseLobby && phase != session.PhaseCountdown) {
		p.machine.Sync(room.Players)
		return
	}
	setup := session.Setup{
		Tickets:  room.Tickets,
		Duration: room.Duration(),
		Players:  room.Players,
	}
	if room.StartedAt != nil {
		setup.StartedAt = *room.StartedAt
	}
	if err := p.machine.Start(setup); err != nil {
		p.logger.Warn("cannot start match", "error", err)
		return
	}
	p.logger.Info("match started", "tickets", len(room.Tickets), "remaining", p.machine.Remaining())
	p.emit(p.machine.Evaluate())
}

// fetchRoom reads the room off the loop and hands it back to it.
func (p *Peer) fetchRoom(ctx context.Context) {
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		for attempt := 1; ; attempt++ {
			room, err := p.registry.GetRoom(ctx, p.cfg.RoomCode)
			if err == nil {
				select {
				case p.rooms <- room:
				case <-ctx.Done():
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("fetching room failed", "attempt", attempt, "error", err)
			if attempt == fetchAttempts {
				return
			}
			select {
			case <-p.clock.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return
			}
		}
	}()
}

// maybeLaunch starts the match once the host's countdown runs out.
func (p *Peer) maybeLaunch(ctx context.Context) {
	if !p.cfg.Host || p.launching || p.machine.Phase() != session.PhaseCountdown || p.machine.Countdown() > 0 {
		return
	}
	p.startLaunch(ctx, nil)
}

// startLaunch runs launch in the background. It must be called on the loop
// goroutine. A failed launch clears the latch so the next tick retries.
func (p *Peer) startLaunch(ctx context.Context, result chan<- error) {
	p.launching = true
	p.bg.Add(1)
	go func() {
		defer p.bg.Done()
		err := p.launch(ctx)
		if err != nil {
			p.logger.Error("launching match failed", "error", err)
			_ = p.do(context.WithoutCancel(ctx), func(*session.Machine) ([]session.Message, error) {
				p.launching = false
				return nil, nil
			})
		}
		if result != nil {
			result <- err
		}
	}()
}

// launch marks the room playing, tells the other peers and starts locally.
func (p *Peer) launch(ctx context.Context) error {
	if err := p.registry.SetStatus(ctx, p.cfg.RoomCode, mergeclash.RoomPlaying); err != nil {
		return fmt.Errorf("marking room playing: %w", err)
	}
	err := p.do(ctx, func(*session.Machine) ([]session.Message, error) {
		return []session.Message{session.GameStart{}}, nil
	})
	if err != nil {
		return err
	}
	p.fetchRoom(ctx)
	return nil
}

// emit queues messages for publishing. The machine has already applied them.
func (p *Peer) emit(msgs []session.Message) {
	if len(msgs) > 0 {
		p.queue.push(msgs)
	}
}

func (p *Peer) refresh() {
	s := p.machine.Snapshot()
	p.snapshot.Store(&s)
	if s.Phase == session.PhaseGameOver {
		p.overOnce.Do(func() { close(p.over) })
	}
}

// do runs fn on the loop goroutine and queues what it returns.
func (p *Peer) do(ctx context.Context, fn func(m *session.Machine) ([]session.Message, error)) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	errc := make(chan error, 1)
	act := func() {
		out, err := fn(p.machine)
		p.emit(out)
		errc <- err
	}
	select {
	case p.actions <- act:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrNotRunning
	}
	return <-errc
}

func (p *Peer) SubmitAnswer(ctx context.Context, answer mergeclash.Answer) (bool, error) {
	var correct bool
	err := p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		ok, out, err := m.SubmitAnswer(answer)
		correct = ok
		return out, err
	})
	return correct, err
}

func (p *Peer) ThrowConflict(ctx context.Context, targetID string) error {
	return p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		return m.ThrowConflict(targetID)
	})
}

func (p *Peer) ResolveConflict(ctx context.Context, answer mergeclash.Answer) (bool, error) {
	var resolved bool
	err := p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		ok, out, err := m.ResolveConflict(answer)
		resolved = ok
		return out, err
	})
	return resolved, err
}

// Targets lists the players the local player can throw a conflict at.
func (p *Peer) Targets(ctx context.Context) ([]string, error) {
	var ids []string
	err := p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		var err error
		ids, err = m.Targets()
		return nil, err
	})
	return ids, err
}

// StartCountdown begins the lobby countdown. When it reaches zero the host
// marks the room playing and announces game_start.
func (p *Peer) StartCountdown(ctx context.Context, seconds int) error {
	if !p.cfg.Host {
		return ErrNotHost
	}
	return p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		return m.StartCountdown(seconds)
	})
}

func (p *Peer) CancelCountdown(ctx context.Context) error {
	if !p.cfg.Host {
		return ErrNotHost
	}
	return p.do(ctx, func(m *session.Machine) ([]session.Message, error) {
		return m.CancelCountdown()
	})
}

// StartGame skips the countdown.
func (p *Peer) StartGame(ctx context.Context) error {
	if !p.cfg.Host {
		return ErrNotHost
	}
	result := make(chan error, 1)
	err := p.do(ctx, func(*session.Machine) ([]session.Message, error) {
		if p.launching {
			return nil, errors.New("match already launching")
		}
		p.startLaunch(ctx, result)
		return nil, nil
	})
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
