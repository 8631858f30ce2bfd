package server

import (
	"log/slog"
	"testing"
	"time"

	"github.com/lmf-git/gisaima/server/cmd"
	"github.com/lmf-git/gisaima/server/store"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return Config{
		Log:             slog.Default(),
		Store:           store.NewMemory(),
		TickInterval:    time.Minute,
		DisableMonsters: true,
	}.New()
}

func TestCreateWorldIsIdempotent(t *testing.T) {
	srv := testServer(t)
	w1, err := srv.CreateWorld("alpha", 11, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	info, err := w1.LoadInfo()
	if err != nil {
		t.Fatalf("load info: %v", err)
	}
	if info.Seed != 11 {
		t.Fatalf("seed = %d, want 11", info.Seed)
	}

	// A second create must not reset the world.
	if err := srv.conf.Store.Commit(store.Update{w1.InfoPath() + "/lastTick": int64(5)}); err != nil {
		t.Fatalf("stamp: %v", err)
	}
	if _, err := srv.CreateWorld("alpha", 99, 2); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	info, _ = w1.LoadInfo()
	if info.Seed != 11 || info.LastTick != 5 {
		t.Fatalf("existing world must be untouched, got %+v", info)
	}
}

func TestLoadWorldsRegistersExisting(t *testing.T) {
	srv := testServer(t)
	if _, err := srv.CreateWorld("alpha", 1, 1); err != nil {
		t.Fatalf("create: %v", err)
	}

	srv2 := Config{
		Log:             slog.Default(),
		Store:           srv.conf.Store,
		DisableMonsters: true,
	}.New()
	if err := srv2.LoadWorlds(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := srv2.World("alpha"); !ok {
		t.Fatalf("existing world must be registered")
	}
}

func TestContextChecksAuthAndWorld(t *testing.T) {
	srv := testServer(t)
	if _, err := srv.Context("", "alpha"); cmd.KindOf(err) != cmd.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := srv.Context("p1", "missing"); cmd.KindOf(err) != cmd.NotFound {
		t.Fatalf("expected not-found, got %v", err)
	}

	if _, err := srv.CreateWorld("alpha", 1, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	c, err := srv.Context("p1", "alpha")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if c.UID != "p1" || c.World.ID != "alpha" {
		t.Fatalf("context wrong: %+v", c)
	}
}

func TestCommandRateLimit(t *testing.T) {
	srv := Config{
		Log:             slog.Default(),
		Store:           store.NewMemory(),
		DisableMonsters: true,
		CommandRate:     1,
		CommandBurst:    2,
	}.New()
	if _, err := srv.CreateWorld("alpha", 1, 1); err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, err := srv.Context("p1", "alpha"); err != nil {
			t.Fatalf("burst request %d rejected: %v", i, err)
		}
	}
	_, err := srv.Context("p1", "alpha")
	if cmd.KindOf(err) != cmd.FailedPrecondition {
		t.Fatalf("expected rate limit rejection, got %v", err)
	}

	// Another caller has an independent budget.
	if _, err := srv.Context("p2", "alpha"); err != nil {
		t.Fatalf("second caller must not be limited: %v", err)
	}
}

func TestDefaultConfigRejectsChunkSizeChange(t *testing.T) {
	uc := DefaultConfig()
	uc.World.ChunkSize = 32
	if _, err := uc.Config(slog.Default()); err == nil {
		t.Fatalf("expected chunk size change rejection")
	}
}
