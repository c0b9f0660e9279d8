package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.MaxPlayers != 10 || cfg.TicketCacheTTL != 10*time.Minute {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RedisURL != "" {
		t.Errorf("redis url = %q, want empty", cfg.RedisURL)
	}
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("TICKET_CACHE_TTL", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" || cfg.LogLevel != slog.LevelDebug || cfg.TicketCacheTTL != 30*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.RedisURL)
	}
}

func TestLoadServerRejects(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"single player room", "MAX_PLAYERS", "1"},
		{"no tickets", "TICKET_COUNT", "0"},
		{"bad duration", "TICKET_CACHE_TTL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadServer(); err == nil {
				t.Errorf("%s=%s: expected error", tt.key, tt.value)
			}
		})
	}
}

func TestLoadPeer(t *testing.T) {
	t.Setenv("ROOM_CODE", "ABC234")
	t.Setenv("HOST", "true")
	t.Setenv("ANSWER_EVERY", "250ms")

	cfg, err := LoadPeer()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RoomCode != "ABC234" || !cfg.Host || cfg.AnswerEvery != 250*time.Millisecond {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != time.Second || cfg.Accuracy != 0.8 {
		t.Errorf("defaults = %+v", cfg)
	}

	if cfg.Topic != "mix" || cfg.DurationMinutes != 10 {
		t.Errorf("room defaults = %+v", cfg)
	}

	t.Setenv("ACCURACY", "1.5")
	if _, err := LoadPeer(); err == nil {
		t.Error("expected accuracy out of range to fail")
	}
}

func TestLoadPeerTopic(t *testing.T) {
	t.Setenv("TOPIC", "go")
	if _, err := LoadPeer(); err == nil {
		t.Error("expected unknown topic to fail when creating a room")
	}

	// The topic is not used when joining.
	t.Setenv("ROOM_CODE", "ABC234")
	if _, err := LoadPeer(); err != nil {
		t.Errorf("joining with a stray topic: %v", err)
	}
}
