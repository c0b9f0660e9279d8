package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/playperu/mergeclash/internal/mergeclash"
)

// Server configures the room registry and event log service.
type Server struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/mergeclash.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	// RedisURL switches the event log to Redis Streams. Rooms stay in SQLite.
	RedisURL       string        `env:"REDIS_URL"`
	TicketCount    int           `env:"TICKET_COUNT" envDefault:"10"`
	TicketCacheTTL time.Duration `env:"TICKET_CACHE_TTL" envDefault:"10m"`
	// TicketSourceURL is an optional ticket generator. Without one, rooms are
	// played with the built-in ticket bank.
	TicketSourceURL string `env:"TICKET_SOURCE_URL"`
	MaxPlayers     int           `env:"MAX_PLAYERS" envDefault:"10"`
}

// Peer configures a headless player.
type Peer struct {
	ServerURL string     `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	RoomCode  string     `env:"ROOM_CODE"`
	PlayerID  string     `env:"PLAYER_ID"`
	Nickname  string     `env:"NICKNAME" envDefault:"bot"`
	Host      bool       `env:"HOST"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	PollLimit    int           `env:"POLL_LIMIT" envDefault:"50"`
	// AnswerEvery is the bot's thinking time per ticket.
	AnswerEvery time.Duration `env:"ANSWER_EVERY" envDefault:"5s"`
	// Accuracy is the chance the bot answers a ticket correctly.
	Accuracy       float64 `env:"ACCURACY" envDefault:"0.8"`
	RequestRetries int     `env:"REQUEST_RETRIES" envDefault:"3"`
	// Countdown is how long a hosting bot counts down before starting.
	Countdown int `env:"COUNTDOWN" envDefault:"3"`
	// Topic and DurationMinutes apply when the bot creates the room.
	Topic           string `env:"TOPIC" envDefault:"mix"`
	DurationMinutes int    `env:"DURATION_MINUTES" envDefault:"10"`
	// MetricsAddr serves the bot's channel metrics when set.
	MetricsAddr string `env:"METRICS_ADDR"`
}

func LoadServer() (*Server, error) {
	cfg, err := env.ParseAs[Server]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.MaxPlayers < 2 {
		return nil, fmt.Errorf("MAX_PLAYERS must be at least 2, got %d", cfg.MaxPlayers)
	}
	if cfg.TicketCount < 1 {
		return nil, fmt.Errorf("TICKET_COUNT must be positive, got %d", cfg.TicketCount)
	}
	return &cfg, nil
}

func LoadPeer() (*Peer, error) {
	cfg, err := env.ParseAs[Peer]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.Accuracy < 0 || cfg.Accuracy > 1 {
		return nil, fmt.Errorf("ACCURACY must be within [0, 1], got %v", cfg.Accuracy)
	}
	if cfg.RoomCode == "" && !mergeclash.Topic(cfg.Topic).Valid() {
		return nil, fmt.Errorf("TOPIC must be php, frontend or mix, got %q", cfg.Topic)
	}
	return &cfg, nil
}
