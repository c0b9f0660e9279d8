// Command peer is a headless MergeClash player. It creates or joins a room
// through the room service and plays the match as a bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/mergeclash/internal/api"
	"github.com/playperu/mergeclash/internal/channel"
	"github.com/playperu/mergeclash/internal/client"
	"github.com/playperu/mergeclash/internal/config"
	"github.com/playperu/mergeclash/internal/mergeclash"
	"github.com/playperu/mergeclash/internal/peer"
	"github.com/playperu/mergeclash/internal/session"
)

const leaveTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.LoadPeer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	c, err := client.New(cfg.ServerURL,
		client.WithRetries(cfg.RequestRetries),
		client.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	room, self, host, err := enter(ctx, c, cfg)
	if err != nil {
		return err
	}
	logger.Info("room ready", "room", room.Code, "player", self.ID, "host", host, "tickets", len(room.Tickets))

	reg := prometheus.NewRegistry()
	p := peer.New(c, c, peer.Config{
		RoomCode: room.Code,
		PlayerID: self.ID,
		Nickname: self.Nickname,
		Host:     host,
	},
		peer.WithLogger(logger),
		peer.WithTickInterval(cfg.TickInterval),
		peer.WithChannelOptions(
			channel.WithPollInterval(cfg.PollInterval),
			channel.WithLimit(cfg.PollLimit),
			channel.WithMetrics(channel.NewMetrics(reg)),
		),
	)
	b := &bot{
		player:     p,
		tickets:    room.Tickets,
		accuracy:   cfg.Accuracy,
		host:       host,
		countdown:  cfg.Countdown,
		minPlayers: 2,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:     logger.With("room", room.Code, "player", self.ID),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(gctx)
	})

	g.Go(func() error {
		defer cancel()
		result, err := b.play(gctx, cfg.AnswerEvery)
		if err != nil {
			// Interrupted mid-match: tell the others before going.
			lctx, lcancel := context.WithTimeout(context.WithoutCancel(gctx), leaveTimeout)
			defer lcancel()
			if lerr := p.Leave(lctx); lerr != nil {
				logger.Warn("announcing leave", "error", lerr)
			}
			return nil
		}
		p.Stop()
		logResult(logger, result)
		return nil
	})

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Shutdown(context.Background())
		})
	}

	return g.Wait()
}

// enter creates a room, joins one, or resumes as an existing player, and
// reports whether the bot hosts the match.
func enter(ctx context.Context, c *client.Client, cfg *config.Peer) (mergeclash.Room, mergeclash.Player, bool, error) {
	switch {
	case cfg.RoomCode == "":
		resp, err := c.CreateRoom(ctx, api.CreateRoomRequest{
			Topic:           mergeclash.Topic(cfg.Topic),
			DurationMinutes: cfg.DurationMinutes,
			Nickname:        cfg.Nickname,
		})
		if err != nil {
			return mergeclash.Room{}, mergeclash.Player{}, false, fmt.Errorf("creating room: %w", err)
		}
		return resp.Room, resp.Player, true, nil

	case cfg.PlayerID == "":
		resp, err := c.JoinRoom(ctx, cfg.RoomCode, cfg.Nickname)
		if err != nil {
			return mergeclash.Room{}, mergeclash.Player{}, false, fmt.Errorf("joining room %s: %w", cfg.RoomCode, err)
		}
		return resp.Room, resp.Player, cfg.Host, nil
	}

	room, err := c.GetRoom(ctx, cfg.RoomCode)
	if err != nil {
		return mergeclash.Room{}, mergeclash.Player{}, false, fmt.Errorf("loading room %s: %w", cfg.RoomCode, err)
	}
	for _, pl := range room.Players {
		if pl.ID == cfg.PlayerID {
			return room, pl, cfg.Host, nil
		}
	}
	return mergeclash.Room{}, mergeclash.Player{}, false, fmt.Errorf("player %s is not in room %s", cfg.PlayerID, cfg.RoomCode)
}

func logResult(logger *slog.Logger, result *session.GameEnd) {
	if result == nil {
		logger.Warn("match ended without a result")
		return
	}
	logger.Info("match over", "reason", result.Reason, "winner", result.WinnerID)
	for i, r := range result.Rankings {
		logger.Info("ranking",
			"place", i+1,
			"nickname", r.Nickname,
			"progress", r.Progress,
			"correct", r.TotalCorrect,
			"wrong", r.TotalWrong,
			"accuracy", r.Accuracy,
		)
	}
}
