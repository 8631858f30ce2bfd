// Package monster implements the monster collaborator driven by the world
// tick: spawning, a simple strategy pass and group merging. All effects are
// staged into the tick's update; the package never commits on its own, so
// it can be replaced without touching the engine's concurrency model.
package monster

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/world"
)

// Tunables for the default monster behaviour.
const (
	maxGroupsPerSpawn = 3
	minSpawnDistance  = 3
	maxSpawnDistance  = 8
	maxWanderDistance = 6
	maxMonsterUnits   = 5
)

// AI is the default world.MonsterAI implementation.
type AI struct{}

// New returns the default monster AI.
func New() *AI { return &AI{} }

var monsterUnitTypes = []string{"goblin_raider", "militia"}

// Spawn places new monster groups near chunks where something is happening.
func (a *AI) Spawn(w *world.World, u *world.Update, snap *world.Snapshot, now int64, rng *rand.Rand) {
	anchors := activeTiles(snap)
	if len(anchors) == 0 {
		return
	}
	spawned := 0
	for _, anchor := range anchors {
		if spawned >= maxGroupsPerSpawn {
			break
		}
		if rng.Float64() > 0.5 {
			continue
		}
		pos := offsetFrom(anchor.Pos, minSpawnDistance+rng.IntN(maxSpawnDistance-minSpawnDistance+1), rng)
		if occupied(snap, pos) {
			continue
		}
		g := newMonsterGroup(pos, rng)
		u.SetGroup(w.GroupPath(pos, g.ID), g)
		spawned++
	}
}

// Strategy drives idle monster groups: approach nearby activity, join a
// battle on their tile, or gather.
func (a *AI) Strategy(w *world.World, u *world.Update, snap *world.Snapshot, now int64, rng *rand.Rand) {
	for _, tile := range allTiles(snap) {
		for _, id := range tile.GroupIDs() {
			g := tile.Groups[id]
			if g.Owner != world.MonsterOwner || g.Status != world.StatusIdle {
				continue
			}
			if battleID, side, ok := joinableBattle(tile, g); ok {
				g.Status = world.StatusFighting
				g.InBattle = true
				g.BattleID = battleID
				g.BattleSide = side
				g.BattleRole = world.RoleSupporter
				u.SetGroup(w.GroupPath(tile.Pos, id), g)
				b := tile.Battles[battleID]
				b.Side(side).Groups[id] = true
				b.AddEvent(world.EventBattleJoin, id, now, fmt.Sprintf("%s joined side %d", g.Name, side))
				u.Set(w.BattlePath(tile.Pos, battleID), b.Encode())
				continue
			}
			switch rng.IntN(3) {
			case 0:
				a.wander(w, u, snap, tile, g, now, rng)
			case 1:
				g.Status = world.StatusGathering
				g.GatheringBiome = tile.Biome
				g.GatheringTicksRemaining = world.GatheringTicks
				u.SetGroup(w.GroupPath(tile.Pos, id), g)
			}
		}
	}
}

// wander sends the group a few tiles along a direction vector, biased
// toward the most active neighbouring chunk when there is one.
func (a *AI) wander(w *world.World, u *world.Update, snap *world.Snapshot, tile *world.Tile, g *world.Group, now int64, rng *rand.Rand) {
	dir := directionToActivity(snap, tile.Pos)
	if dir == (mgl64.Vec2{}) {
		angle := rng.Float64() * 2 * math.Pi
		dir = mgl64.Vec2{math.Cos(angle), math.Sin(angle)}
	}
	dist := float64(1 + rng.IntN(maxWanderDistance))
	target := world.TilePos{
		X: tile.Pos.X + int(math.Round(dir.X()*dist)),
		Y: tile.Pos.Y + int(math.Round(dir.Y()*dist)),
	}
	if target == tile.Pos {
		return
	}
	info, err := w.LoadInfo()
	if err != nil {
		return
	}
	path := world.BresenhamPath(tile.Pos, target)
	g.Status = world.StatusMoving
	g.MovementPath = path
	g.PathIndex = 0
	g.MoveStarted = now
	g.NextMoveTime = now + info.MoveDelay()
	g.TargetX, g.TargetY = target.X, target.Y
	u.SetGroup(w.GroupPath(tile.Pos, g.ID), g)
}

// Merge coalesces co-located idle monster groups into the first of them.
func (a *AI) Merge(w *world.World, u *world.Update, snap *world.Snapshot, now int64, rng *rand.Rand) {
	for _, tile := range allTiles(snap) {
		var dst *world.Group
		for _, id := range tile.GroupIDs() {
			g := tile.Groups[id]
			if g.Owner != world.MonsterOwner || g.Status != world.StatusIdle {
				continue
			}
			if dst == nil {
				dst = g
				continue
			}
			for uid, unit := range g.Units {
				dst.Units[uid] = unit
			}
			if g.Items.Total() > 0 {
				if dst.Items == nil {
					dst.Items = world.ItemBag{}
				}
				dst.Items.Add(g.Items)
			}
			u.DeleteGroup(w.GroupPath(tile.Pos, g.ID), world.StatusIdle)
		}
		if dst != nil {
			dst.Motion = world.DeriveMotion(dst.Units)
			u.SetGroup(w.GroupPath(tile.Pos, dst.ID), dst)
		}
	}
}

func newMonsterGroup(pos world.TilePos, rng *rand.Rand) *world.Group {
	units := map[string]world.Unit{}
	count := 2 + rng.IntN(maxMonsterUnits-1)
	unitType := monsterUnitTypes[rng.IntN(len(monsterUnitTypes))]
	def, _ := world.UnitDefOf(unitType)
	for i := 0; i < count; i++ {
		units[uuid.NewString()] = world.Unit{
			Type:     unitType,
			Owner:    world.MonsterOwner,
			Strength: def.Strength,
		}
	}
	return &world.Group{
		ID:     "monster_" + uuid.NewString()[:8],
		Owner:  world.MonsterOwner,
		Name:   "Monster Pack",
		Race:   "monster",
		X:      pos.X,
		Y:      pos.Y,
		Status: world.StatusIdle,
		Units:  units,
		Motion: world.DeriveMotion(units),
	}
}

// joinableBattle finds a battle on the tile that a monster group may pile
// into: monsters always reinforce the side that already holds monster
// groups, or the attacking side of a structure assault otherwise.
func joinableBattle(tile *world.Tile, g *world.Group) (string, int64, bool) {
	for _, id := range tile.BattleIDs() {
		b := tile.Battles[id]
		for _, side := range []int64{1, 2} {
			for gid := range b.Side(side).Groups {
				if other, ok := tile.Groups[gid]; ok && other.Owner == world.MonsterOwner {
					return id, side, true
				}
			}
		}
		if b.HasTarget(world.TargetStructure) {
			return id, 1, true
		}
	}
	return "", 0, false
}

// directionToActivity returns a unit vector toward the neighbouring chunk
// with the highest activity count, or the zero vector when no neighbouring
// chunk has any activity.
func directionToActivity(snap *world.Snapshot, from world.TilePos) mgl64.Vec2 {
	if snap.Activity == nil {
		return mgl64.Vec2{}
	}
	chunk := from.Chunk()
	best := mgl64.Vec2{}
	bestActivity := int64(0)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			neighbour := world.ChunkPos{X: chunk.X + dx, Y: chunk.Y + dy}
			if activity, ok := snap.Activity.Get(neighbour.Packed()); ok && activity > bestActivity {
				bestActivity = activity
				best = mgl64.Vec2{float64(dx), float64(dy)}.Normalize()
			}
		}
	}
	return best
}

func activeTiles(snap *world.Snapshot) []*world.Tile {
	var out []*world.Tile
	for _, tile := range allTiles(snap) {
		hasPlayerActivity := tile.Structure != nil || len(tile.Players) > 0
		for _, g := range tile.Groups {
			if g.Owner != world.MonsterOwner {
				hasPlayerActivity = true
			}
		}
		if hasPlayerActivity {
			out = append(out, tile)
		}
	}
	return out
}

func allTiles(snap *world.Snapshot) []*world.Tile {
	tiles := make([]*world.Tile, 0, len(snap.Tiles))
	for _, tile := range snap.Tiles {
		tiles = append(tiles, tile)
	}
	// Deterministic order keeps a retried tick staging the same writes.
	sort.Slice(tiles, func(i, j int) bool {
		a, b := tiles[i].Pos, tiles[j].Pos
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Y < b.Y
	})
	return tiles
}

func occupied(snap *world.Snapshot, pos world.TilePos) bool {
	t, ok := snap.Tiles[pos]
	if !ok {
		return false
	}
	return len(t.Groups) > 0 || t.Structure != nil
}

func offsetFrom(pos world.TilePos, dist int, rng *rand.Rand) world.TilePos {
	angle := rng.Float64() * 2 * math.Pi
	v := mgl64.Vec2{math.Cos(angle), math.Sin(angle)}.Mul(float64(dist))
	return world.TilePos{
		X: pos.X + int(math.Round(v.X())),
		Y: pos.Y + int(math.Round(v.Y())),
	}
}
