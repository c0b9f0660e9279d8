package migrations_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/playperu/mergeclash/internal/database"
	"github.com/playperu/mergeclash/internal/migrations"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMigrations(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, discard); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	// Verify all tables exist by querying sqlite_master.
	want := []string{"rooms", "game_events"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, discard); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(context.Background(), db, discard); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestEventsRequireRoom(t *testing.T) {
	db, err := database.Open(context.Background(), database.Memory)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(context.Background(), db, discard); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	_, err = db.Exec(
		`INSERT INTO game_events (id, room_code, sender_id, kind, payload, created_at)
		 VALUES ('e1', 'NOROOM', 'p1', 'activity', '{}', 1)`,
	)
	if err == nil {
		t.Fatal("event for a missing room was accepted")
	}
}
