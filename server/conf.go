package server

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
	"github.com/lmf-git/gisaima/server/world/monster"
)

// Config contains options for running a Gisaima server.
type Config struct {
	// Log is the logger used by every component. If nil, slog.Default() is
	// used.
	Log *slog.Logger
	// Store is the hierarchical KV store holding every world. Required.
	Store store.Store
	// TickInterval is the period of the global tick driver. Worlds may
	// override their own interval through their info record; this is the
	// scheduler's base rate. Defaults to one minute.
	TickInterval time.Duration
	// Monsters is the monster AI collaborator invoked by the tick. If nil,
	// the default AI is used; monster passes can be disabled entirely with
	// DisableMonsters.
	Monsters world.MonsterAI
	// DisableMonsters turns off all monster passes.
	DisableMonsters bool
	// CommandRate and CommandBurst bound how fast a single caller may issue
	// commands. Zero values fall back to 4 per second with a burst of 8.
	CommandRate  float64
	CommandBurst int
}

// New creates a Server using the fields of conf.
func (conf Config) New() *Server {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Store == nil {
		panic("server: config requires a store")
	}
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Duration(world.DefaultTickInterval) * time.Millisecond
	}
	if conf.Monsters == nil && !conf.DisableMonsters {
		conf.Monsters = monster.New()
	}
	if conf.CommandRate <= 0 {
		conf.CommandRate = 4
	}
	if conf.CommandBurst <= 0 {
		conf.CommandBurst = 8
	}

	var monsters world.MonsterAI
	if !conf.DisableMonsters {
		monsters = conf.Monsters
	}
	srv := &Server{
		conf:     conf,
		log:      conf.Log,
		worlds:   make(map[string]*world.World),
		limiters: make(map[string]*limiterEntry),
		ticker: world.NewTicker(world.TickerConfig{
			Log:      conf.Log,
			Store:    conf.Store,
			Interval: conf.TickInterval,
			Monsters: monsters,
		}),
	}
	return srv
}

// UserConfig is the TOML representation of the server configuration, as
// read from gisaima.toml.
type UserConfig struct {
	Server struct {
		// Name is the display name of this server instance.
		Name string
	}
	World struct {
		// ChunkSize must stay at 20: chunk keys are derived from it and
		// changing it would make every stored key non-canonical.
		ChunkSize int
		// TickIntervalMS is the base tick period in milliseconds.
		TickIntervalMS int
		// DisableMonsters turns off monster spawning and strategy.
		DisableMonsters bool
	}
	Store struct {
		// Folder is the directory holding the persistent store.
		Folder string
	}
	Players struct {
		// CommandRate is the per-player commands-per-second budget.
		CommandRate float64
		// CommandBurst is the per-player burst allowance.
		CommandBurst int
	}
}

// DefaultConfig returns a UserConfig with sensible defaults.
func DefaultConfig() UserConfig {
	uc := UserConfig{}
	uc.Server.Name = "Gisaima Server"
	uc.World.ChunkSize = world.ChunkSize
	uc.World.TickIntervalMS = world.DefaultTickInterval
	uc.Store.Folder = "worlds_db"
	uc.Players.CommandRate = 4
	uc.Players.CommandBurst = 8
	return uc
}

// ReadConfig loads a UserConfig from path, writing the defaults there first
// if the file does not exist.
func ReadConfig(path string) (UserConfig, error) {
	uc := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		out, merr := toml.Marshal(uc)
		if merr != nil {
			return uc, fmt.Errorf("server: encode default config: %w", merr)
		}
		if werr := os.WriteFile(path, out, 0644); werr != nil {
			return uc, fmt.Errorf("server: write default config: %w", werr)
		}
		return uc, nil
	}
	if err != nil {
		return uc, fmt.Errorf("server: read config: %w", err)
	}
	if err := toml.Unmarshal(data, &uc); err != nil {
		return uc, fmt.Errorf("server: parse config: %w", err)
	}
	return uc, nil
}

// Config converts the user configuration into a runtime Config, opening the
// persistent store.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	if uc.World.ChunkSize != 0 && uc.World.ChunkSize != world.ChunkSize {
		return Config{}, fmt.Errorf("server: chunk size is fixed at %d and cannot be changed", world.ChunkSize)
	}
	s, err := store.OpenLevelDB(uc.Store.Folder)
	if err != nil {
		return Config{}, err
	}
	conf := Config{
		Log:             log,
		Store:           s,
		TickInterval:    time.Duration(uc.World.TickIntervalMS) * time.Millisecond,
		DisableMonsters: uc.World.DisableMonsters,
		CommandRate:     uc.Players.CommandRate,
		CommandBurst:    uc.Players.CommandBurst,
	}
	return conf, nil
}
