// Package world implements the Gisaima world simulation: the spatial chunk
// model, the entity records, the tick engine that advances every group's
// state machine, and the battle resolver that runs inside it. All mutation
// flows through path-keyed updates committed atomically to the store.
package world

import (
	"fmt"
	"log/slog"

	"github.com/lmf-git/gisaima/server/store"
)

// Defaults for world configuration. TickInterval may be overridden per world
// through the info record.
const (
	DefaultTickInterval = 60000 // ms
	DefaultSpeed        = 1.0
	MaxChatHistory      = 500
	MaxPathLength       = 1000
	DefaultRecruitQueue = 10
)

// Info is the per-world metadata record.
type Info struct {
	Seed         int64
	Speed        float64
	TickInterval int64
	LastTick     int64
	LastTickHash string
	PlayerCount  int64
}

// EffectiveSpeed returns the world speed multiplier, defaulting to 1.
func (i Info) EffectiveSpeed() float64 {
	if i.Speed <= 0 {
		return DefaultSpeed
	}
	return i.Speed
}

// EffectiveTickInterval returns the tick interval in milliseconds.
func (i Info) EffectiveTickInterval() int64 {
	if i.TickInterval <= 0 {
		return DefaultTickInterval
	}
	return i.TickInterval
}

// MoveDelay is the milliseconds between movement steps: one tick interval
// scaled down by world speed.
func (i Info) MoveDelay() int64 {
	return int64(float64(i.EffectiveTickInterval()) / i.EffectiveSpeed())
}

// DecodeInfo reads a world info record.
func DecodeInfo(v store.Value) Info {
	m := Map(v)
	info := Info{
		Seed:         IntOr(field(m, "seed"), 0),
		TickInterval: IntOr(field(m, "tickInterval"), 0),
		LastTick:     IntOr(field(m, "lastTick"), 0),
		LastTickHash: StrOr(field(m, "lastTickHash"), ""),
		PlayerCount:  IntOr(field(m, "playerCount"), 0),
	}
	switch s := field(m, "speed").(type) {
	case float64:
		info.Speed = s
	case int64:
		info.Speed = float64(s)
	case int:
		info.Speed = float64(s)
	}
	return info
}

// Encode renders the info record.
func (i Info) Encode() store.Value {
	m := map[string]store.Value{
		"seed":         i.Seed,
		"speed":        i.EffectiveSpeed(),
		"tickInterval": i.EffectiveTickInterval(),
		"lastTick":     i.LastTick,
	}
	if i.LastTickHash != "" {
		m["lastTickHash"] = i.LastTickHash
	}
	if i.PlayerCount > 0 {
		m["playerCount"] = i.PlayerCount
	}
	return m
}

// World is a handle on one world's subtree of the store. It carries no
// state of its own beyond identity; every read is a fresh snapshot.
type World struct {
	ID    string
	Store store.Store
	Log   *slog.Logger
}

// New returns a handle on the world with the given id.
func New(id string, s store.Store, log *slog.Logger) *World {
	if log == nil {
		log = slog.Default()
	}
	return &World{ID: id, Store: s, Log: log.With("world", id)}
}

// Path helpers. Every component addresses the store through these so that
// chunk keys stay canonical.

func (w *World) InfoPath() string { return store.Join("worlds", w.ID, "info") }

func (w *World) ChunkPath(c ChunkPos) string {
	return store.Join("worlds", w.ID, "chunks", c.Key())
}

func (w *World) TilePath(p TilePos) string {
	return store.Join("worlds", w.ID, "chunks", p.Chunk().Key(), p.Key())
}

func (w *World) GroupPath(p TilePos, groupID string) string {
	return store.Join(w.TilePath(p), "groups", groupID)
}

func (w *World) PlayerPresencePath(p TilePos, uid string) string {
	return store.Join(w.TilePath(p), "players", uid)
}

func (w *World) StructurePath(p TilePos) string {
	return store.Join(w.TilePath(p), "structure")
}

func (w *World) BattlePath(p TilePos, battleID string) string {
	return store.Join(w.TilePath(p), "battles", battleID)
}

func (w *World) UpgradePath(upgradeID string) string {
	return store.Join("worlds", w.ID, "upgrades", upgradeID)
}

func (w *World) CraftingPath(craftID string) string {
	return store.Join("worlds", w.ID, "crafting", craftID)
}

func (w *World) ChatPath(id string) string {
	return store.Join("worlds", w.ID, "chat", id)
}

func (w *World) PlayerRecordPath(uid string) string {
	return store.Join("players", uid, "worlds", w.ID)
}

// LoadInfo reads the world's info record.
func (w *World) LoadInfo() (Info, error) {
	v, err := w.Store.Read(w.InfoPath())
	if err != nil {
		return Info{}, fmt.Errorf("world %s: read info: %w", w.ID, err)
	}
	return DecodeInfo(v), nil
}

// LoadTile reads and decodes the tile at p. Absent tiles decode as empty.
func (w *World) LoadTile(p TilePos) (*Tile, error) {
	v, err := w.Store.Read(w.TilePath(p))
	if err != nil {
		return nil, fmt.Errorf("world %s: read tile %s: %w", w.ID, p.Key(), err)
	}
	return DecodeTile(p, v), nil
}

// LoadPlayer reads the per-player world record for uid.
func (w *World) LoadPlayer(uid string) (*PlayerRecord, error) {
	v, err := w.Store.Read(w.PlayerRecordPath(uid))
	if err != nil {
		return nil, fmt.Errorf("world %s: read player %s: %w", w.ID, uid, err)
	}
	return DecodePlayerRecord(uid, v), nil
}

// Exists reports whether the world has an info record.
func (w *World) Exists() (bool, error) {
	v, err := w.Store.Read(w.InfoPath())
	if err != nil {
		return false, err
	}
	return v != nil, nil
}
