package main

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/playperu/mergeclash/internal/challenge"
	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/session"
)

type fakePlayer struct {
	snap      session.Snapshot
	over      chan struct{}
	answers   []mergeclash.Answer
	resolves  []mergeclash.Answer
	thrown    []string
	targets   []string
	countdown int
}

func (f *fakePlayer) Snapshot() session.Snapshot { return f.snap }
func (f *fakePlayer) GameOver() <-chan struct{} { return f.over }
func (f *fakePlayer) Targets(context.Context) ([]string, error) {
	if len(f.targets) == 0 {
		return nil, conflict.ErrNoEligibleTargets
	}
	return f.targets, nil
}

func (f *fakePlayer) SubmitAnswer(_ context.Context, a mergeclash.Answer) (bool, error) {
	f.answers = append(f.answers, a)
	return true, nil
}

func (f *fakePlayer) ThrowConflict(_ context.Context, id string) error {
	f.thrown = append(f.thrown, id)
	return nil
}

func (f *fakePlayer) ResolveConflict(_ context.Context, a mergeclash.Answer) (bool, error) {
	f.resolves = append(f.resolves, a)
	return true, nil
}

func (f *fakePlayer) StartCountdown(_ context.Context, seconds int) error {
	f.countdown = seconds
	return nil
}

func newBot(p player, tickets []mergeclash.Ticket, accuracy float64, host bool) *bot {
	return &bot{
		player:     p,
		tickets:    tickets,
		accuracy:   accuracy,
		host:       host,
		countdown:  3,
		minPlayers: 2,
		rng:        rand.New(rand.NewPCG(1, 2)),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func presets(t *testing.T) []mergeclash.Ticket {
	t.Helper()
	tickets, err := challenge.Presets{}.Generate(context.Background(), mergeclash.TopicMix, 0)
	if err != nil {
		t.Fatalf("presets: %v", err)
	}
	return tickets
}

func TestAnswerFor(t *testing.T) {
	for _, ticket := range presets(t) {
		if !ticket.Check(answerFor(ticket, true)) {
			t.Errorf("%s: correct answer rejected", ticket.ID)
		}
		if ticket.Check(answerFor(ticket, false)) {
			t.Errorf("%s: wrong answer accepted", ticket.ID)
		}
	}
}

func TestSolve(t *testing.T) {
	tickets := presets(t)
	hard := mergeclash.HardTickets(tickets)[0]

	challenges := []conflict.Challenge{
		{Kind: conflict.KindPuzzle, Content: hard.ID, Ticket: &hard},
		{Kind: conflict.KindRetype, Content: conflict.Phrases[0]},
	}
	for _, c := range challenges {
		if !c.Resolve(solve(c)) {
			t.Errorf("%s challenge not solved", c.Kind)
		}
	}
}

func TestBotTurn(t *testing.T) {
	ctx := context.Background()
	tickets := presets(t)

	t.Run("host waits for players", func(t *testing.T) {
		p := &fakePlayer{snap: session.Snapshot{Phase: session.PhaseLobby, Players: make([]session.PlayerView, 1)}}
		b := newBot(p, tickets, 1, true)
		if err := b.turn(ctx); err != nil || p.countdown != 0 {
			t.Fatalf("countdown started alone: %v", err)
		}
		p.snap.Players = make([]session.PlayerView, 2)
		if err := b.turn(ctx); err != nil || p.countdown != 3 {
			t.Fatalf("countdown = %d (%v), want 3", p.countdown, err)
		}
	})

	t.Run("guest never starts", func(t *testing.T) {
		p := &fakePlayer{snap: session.Snapshot{Phase: session.PhaseLobby, Players: make([]session.PlayerView, 4)}}
		if err := newBot(p, tickets, 1, false).turn(ctx); err != nil || p.countdown != 0 {
			t.Fatalf("guest started the countdown: %v", err)
		}
	})

	t.Run("answers current ticket", func(t *testing.T) {
		p := &fakePlayer{snap: session.Snapshot{Phase: session.PhasePlaying, Index: 2}}
		if err := newBot(p, tickets, 1, false).turn(ctx); err != nil {
			t.Fatal(err)
		}
		if len(p.answers) != 1 || !tickets[2].Check(p.answers[0]) {
			t.Fatalf("answers = %v, want the answer to %s", p.answers, tickets[2].ID)
		}
	})

	t.Run("throws when it can", func(t *testing.T) {
		p := &fakePlayer{
			snap:    session.Snapshot{Phase: session.PhasePlaying, CanThrow: true},
			targets: []string{"p2"},
		}
		if err := newBot(p, tickets, 1, false).turn(ctx); err != nil {
			t.Fatal(err)
		}
		if len(p.thrown) != 1 || p.thrown[0] != "p2" || len(p.answers) != 0 {
			t.Fatalf("thrown = %v answers = %v", p.thrown, p.answers)
		}
	})

	t.Run("answers when nobody is a target", func(t *testing.T) {
		p := &fakePlayer{snap: session.Snapshot{Phase: session.PhasePlaying, CanThrow: true}}
		if err := newBot(p, tickets, 1, false).turn(ctx); err != nil {
			t.Fatal(err)
		}
		if len(p.thrown) != 0 || len(p.answers) != 1 {
			t.Fatalf("thrown = %v answers = %v", p.thrown, p.answers)
		}
	})

	t.Run("resolves conflict", func(t *testing.T) {
		c := conflict.Challenge{Kind: conflict.KindRetype, Content: conflict.Phrases[1]}
		p := &fakePlayer{snap: session.Snapshot{
			Phase:    session.PhaseConflicted,
			Conflict: &session.ActiveConflict{FromPlayerID: "p2", Challenge: c},
		}}
		if err := newBot(p, tickets, 0, false).turn(ctx); err != nil {
			t.Fatal(err)
		}
		if len(p.resolves) != 1 || !c.Resolve(p.resolves[0]) {
			t.Fatalf("resolves = %v", p.resolves)
		}
	})
}

func TestPlayReturnsResult(t *testing.T) {
	result := &session.GameEnd{WinnerID: "p1"}
	p := &fakePlayer{
		snap: session.Snapshot{Phase: session.PhaseGameOver, Result: result},
		over: make(chan struct{}),
	}
	close(p.over)

	got, err := newBot(p, nil, 1, false).play(context.Background(), time.Hour)
	if err != nil || got == nil || got.WinnerID != "p1" {
		t.Fatalf("play = %+v, %v", got, err)
	}
}
