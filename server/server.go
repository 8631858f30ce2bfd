// Package server assembles the Gisaima world engine: the persistent store,
// the tick driver, the registered worlds and the rate-limited command
// dispatch that the transport layer calls into.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lmf-git/gisaima/server/cmd"
	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// Server owns the registered worlds and the tick driver.
type Server struct {
	conf Config
	log  *slog.Logger

	ticker *world.Ticker

	mu       sync.Mutex
	worlds   map[string]*world.World
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterIdleEviction is how long an idle caller's limiter is kept.
const limiterIdleEviction = 10 * time.Minute

// Run starts the tick loop and blocks until ctx is cancelled.
func (srv *Server) Run(ctx context.Context) {
	srv.log.Info("server started", "worlds", len(srv.Worlds()), "tickInterval", srv.conf.TickInterval)
	srv.ticker.Run(ctx)
}

// Close releases the store.
func (srv *Server) Close() error {
	return srv.conf.Store.Close()
}

// CreateWorld initialises a world's info record if absent and registers it
// with the tick schedule.
func (srv *Server) CreateWorld(id string, seed int64, speed float64) (*world.World, error) {
	w := world.New(id, srv.conf.Store, srv.log)
	exists, err := w.Exists()
	if err != nil {
		return nil, err
	}
	if !exists {
		info := world.Info{Seed: seed, Speed: speed, TickInterval: world.DefaultTickInterval}
		if err := srv.conf.Store.Commit(store.Update{w.InfoPath(): info.Encode()}); err != nil {
			return nil, fmt.Errorf("server: create world %s: %w", id, err)
		}
		srv.log.Info("created world", "world", id, "seed", seed, "speed", speed)
	}
	srv.register(w)
	return w, nil
}

// LoadWorlds registers every world already present in the store.
func (srv *Server) LoadWorlds() error {
	v, err := srv.conf.Store.Read("worlds")
	if err != nil {
		return fmt.Errorf("server: scan worlds: %w", err)
	}
	for id := range world.Map(v) {
		srv.register(world.New(id, srv.conf.Store, srv.log))
	}
	return nil
}

func (srv *Server) register(w *world.World) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.worlds[w.ID]; ok {
		return
	}
	srv.worlds[w.ID] = w
	srv.ticker.Register(w)
}

// World returns a registered world by id.
func (srv *Server) World(id string) (*world.World, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	w, ok := srv.worlds[id]
	return w, ok
}

// Worlds returns every registered world.
func (srv *Server) Worlds() []*world.World {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*world.World, 0, len(srv.worlds))
	for _, w := range srv.worlds {
		out = append(out, w)
	}
	return out
}

// Ticker exposes the tick driver, mainly so operational tooling can force a
// tick.
func (srv *Server) Ticker() *world.Ticker {
	return srv.ticker
}

// limiter returns the caller's rate limiter, creating it on first use and
// evicting limiters idle for a while.
func (srv *Server) limiter(uid string) *rate.Limiter {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	now := time.Now()
	for id, e := range srv.limiters {
		if now.Sub(e.lastSeen) > limiterIdleEviction {
			delete(srv.limiters, id)
		}
	}
	e, ok := srv.limiters[uid]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(srv.conf.CommandRate), srv.conf.CommandBurst)}
		srv.limiters[uid] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Context builds a command context for the authenticated caller against a
// registered world, applying the per-caller rate limit before any store
// read happens.
func (srv *Server) Context(uid, worldID string) (*cmd.Context, error) {
	if uid == "" {
		return nil, cmd.Errorf(cmd.Unauthenticated, "caller is not authenticated")
	}
	if !srv.limiter(uid).Allow() {
		return nil, cmd.Errorf(cmd.FailedPrecondition, "too many commands; slow down")
	}
	w, ok := srv.World(worldID)
	if !ok {
		return nil, cmd.Errorf(cmd.NotFound, "world %s does not exist", worldID)
	}
	return &cmd.Context{UID: uid, World: w, Now: time.Now()}, nil
}
