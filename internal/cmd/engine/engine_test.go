package engine

import (
	"context"
	"flag"
	"testing"
	"time"

	gameengine "github.com/datadealer/dd-app/internal/engine"
	"github.com/datadealer/dd-app/internal/game"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage/memory"
)

func TestParseConfigDefaultsAndFlags(t *testing.T) {
	t.Setenv("DD_APP_ENGINE_ADDR", ":9190")

	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db-path", "test.db", "-drain-limit", "5"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Addr != ":9190" {
		t.Fatalf("addr = %q, want env override", cfg.Addr)
	}
	if cfg.DBPath != "test.db" {
		t.Fatalf("db path = %q, want flag value", cfg.DBPath)
	}
	if cfg.PollInterval != 2*time.Second {
		t.Fatalf("poll interval = %v, want the 2s default", cfg.PollInterval)
	}
	if cfg.DrainLimit != 5 {
		t.Fatalf("drain limit = %d, want 5", cfg.DrainLimit)
	}
}

func TestDrainDueCharges(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := memory.New()
	store.SetClock(clock)
	catalog, err := rules.NewCatalog()
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	eng, err := gameengine.New(store, catalog, gameengine.Options{Clock: clock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	start := now.Add(-time.Minute)
	doc := &game.Document{
		Owner:   "alice",
		Version: 1,
		Values:  game.Values{Cash: 100, Level: 1, APSnapshot: 10, APUpdated: now},
		Nodes: []*game.Node{{
			ID: "n1", Path: "n1", Gestalt: "contact_courier", Kind: game.KindContact,
			Instance: game.Instance{ChargeStart: &start},
		}},
		Charging: []game.ChargeJob{{
			Path:   "n1",
			Start:  start,
			End:    start.Add(45 * time.Second),
			Result: game.Yield{ProfileSet: &game.ProfileSet{Profiles: 40}},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	finished, err := drainDueCharges(context.Background(), store, eng, now, 0)
	if err != nil {
		t.Fatalf("drainDueCharges: %v", err)
	}
	if finished != 1 {
		t.Fatalf("finished = %d, want 1", finished)
	}
	stored, err := store.Get(context.Background(), "alice", 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(stored.Charging) != 0 || len(stored.Ready) != 1 {
		t.Fatalf("charging = %v ready = %v", stored.Charging, stored.Ready)
	}

	// A second pass finds nothing left to finish.
	finished, err = drainDueCharges(context.Background(), store, eng, now, 0)
	if err != nil || finished != 0 {
		t.Fatalf("second drain = %d, %v", finished, err)
	}
}
