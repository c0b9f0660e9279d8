package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/playperu/mergeclash/internal/conflict"
	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/peer"
	"github.com/playperu/mergeclash/internal/session"
)

// player is the part of a peer the bot drives.
type player interface {
	Snapshot() session.Snapshot
	GameOver() <-chan struct{}
	SubmitAnswer(ctx context.Context, answer mergeclash.Answer) (bool, error)
	ThrowConflict(ctx context.Context, targetID string) error
	ResolveConflict(ctx context.Context, answer mergeclash.Answer) (bool, error)
	Targets(ctx context.Context) ([]string, error)
	StartCountdown(ctx context.Context, seconds int) error
}

var _ player = (*peer.Peer)(nil)

// bot plays a match on its own: one action per turn, answering correctly with
// the configured probability.
type bot struct {
	player    player
	tickets   []mergeclash.Ticket
	accuracy  float64
	host      bool
	countdown int
	// minPlayers is how many players a hosting bot waits for.
	minPlayers int
	rng        *rand.Rand
	logger     *slog.Logger

	counting bool
}

// play takes a turn every interval until the match is over or ctx is done.
func (b *bot) play(ctx context.Context, interval time.Duration) (*session.GameEnd, error) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.player.GameOver():
			return b.player.Snapshot().Result, nil
		case <-t.C:
			if err := b.turn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				b.logger.Warn("bot turn failed", "error", err)
			}
		}
	}
}

// turn makes the single move the current phase calls for.
func (b *bot) turn(ctx context.Context) error {
	snap := b.player.Snapshot()
	switch snap.Phase {
	case session.PhaseLobby:
		if !b.host || b.counting || len(snap.Players) < b.minPlayers {
			return nil
		}
		if err := b.player.StartCountdown(ctx, b.countdown); err != nil {
			return err
		}
		b.counting = true
		b.logger.Info("countdown started", "players", len(snap.Players))

	case session.PhaseCountdown:
		b.counting = true

	case session.PhaseConflicted:
		if snap.Conflict == nil {
			return nil
		}
		ok, err := b.player.ResolveConflict(ctx, solve(snap.Conflict.Challenge))
		if err == nil {
			b.logger.Info("conflict resolved", "from", snap.Conflict.FromNickname, "ok", ok)
		}
		return err

	case session.PhasePlaying:
		if snap.CanThrow {
			// With nobody to throw at, keep answering.
			targets, err := b.player.Targets(ctx)
			if err != nil && !errors.Is(err, conflict.ErrNoEligibleTargets) {
				return err
			}
			if len(targets) > 0 {
				target := targets[b.rng.IntN(len(targets))]
				b.logger.Info("throwing conflict", "target", target)
				return b.player.ThrowConflict(ctx, target)
			}
		}
		if snap.Index >= len(b.tickets) {
			return nil
		}
		ticket := b.tickets[snap.Index]
		correct, err := b.player.SubmitAnswer(ctx, answerFor(ticket, b.rng.Float64() < b.accuracy))
		if err == nil {
			b.logger.Debug("answered", "ticket", ticket.ID, "correct", correct)
		}
		return err
	}
	return nil
}

// answerFor returns an answer that solves ticket when correct is set and one
// that fails it otherwise.
func answerFor(ticket mergeclash.Ticket, correct bool) mergeclash.Answer {
	if correct {
		return append(mergeclash.Answer(nil), ticket.CorrectAnswer...)
	}
	return mergeclash.Answer{""}
}

func solve(c conflict.Challenge) mergeclash.Answer {
	if c.Kind == conflict.KindPuzzle && c.Ticket != nil {
		return append(mergeclash.Answer(nil), c.Ticket.CorrectAnswer...)
	}
	return mergeclash.Answer{c.Content}
}
