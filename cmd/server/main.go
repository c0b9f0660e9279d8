package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/mergeclash/internal/challenge"
	"github.com/playperu/mergeclash/internal/config"
	"github.com/playperu/mergeclash/internal/database"
	"github.com/playperu/mergeclash/internal/eventlog"
	"github.com/playperu/mergeclash/internal/handler/health"
	"github.com/playperu/mergeclash/internal/migrations"
	"github.com/playperu/mergeclash/internal/server"
	"github.com/playperu/mergeclash/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	rooms := store.NewSQLite(db, nil)
	checks := map[string]health.Checker{
		"sqlite": health.CheckFunc(rooms.Ping),
	}

	// --- Event log ---
	var events eventlog.Store = rooms
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		events = store.NewRedis(rdb, store.DefaultStreamTTL)
		checks["redis"] = health.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		logger.Info("event log on redis streams")
	}

	// --- Tickets ---
	var source challenge.Generator
	if cfg.TicketSourceURL != "" {
		source = challenge.NewRemote(cfg.TicketSourceURL, challenge.WithRemoteLogger(logger))
		logger.Info("generating tickets remotely", "url", cfg.TicketSourceURL)
	}
	tickets := challenge.NewCache(source,
		challenge.WithTTL(cfg.TicketCacheTTL),
		challenge.WithLogger(logger),
	)
	defer tickets.Wait()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(reg)

	// --- HTTP Server ---
	routes := server.Routes(logger, server.Deps{
		Rooms:       rooms,
		Events:      events,
		Tickets:     tickets,
		Metrics:     metrics,
		MaxPlayers:  cfg.MaxPlayers,
		TicketCount: cfg.TicketCount,
	})
	srv := server.New(cfg.HTTPAddr, logger, metrics, func(r chi.Router) {
		routes(r)
		r.Mount("/healthz", health.NewHandler(logger, checks).Routes())
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
