package monster

import (
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

func testSetup(t *testing.T) *world.World {
	t.Helper()
	mem := store.NewMemory()
	w := world.New("w1", mem, slog.Default())
	info := world.Info{Seed: 3, Speed: 1, TickInterval: 60000}
	if err := mem.Commit(store.Update{w.InfoPath(): info.Encode()}); err != nil {
		t.Fatalf("seed info: %v", err)
	}
	return w
}

func snapshotOf(t *testing.T, w *world.World, positions ...world.TilePos) *world.Snapshot {
	t.Helper()
	snap := &world.Snapshot{Tiles: map[world.TilePos]*world.Tile{}}
	for _, pos := range positions {
		tile, err := w.LoadTile(pos)
		if err != nil {
			t.Fatalf("load tile: %v", err)
		}
		snap.Tiles[pos] = tile
	}
	return snap
}

func monsterGroup(id string, pos world.TilePos, n int) *world.Group {
	units := map[string]world.Unit{}
	for i := 0; i < n; i++ {
		units[id+"_u"+string(rune('a'+i))] = world.Unit{Type: "goblin_raider", Owner: world.MonsterOwner, Strength: 1}
	}
	return &world.Group{
		ID: id, Owner: world.MonsterOwner, Name: "Pack", X: pos.X, Y: pos.Y,
		Status: world.StatusIdle, Units: units,
	}
}

func TestMergeCoalescesIdleMonsterGroups(t *testing.T) {
	w := testSetup(t)
	pos := world.TilePos{X: 1, Y: 1}
	a := monsterGroup("m1", pos, 2)
	b := monsterGroup("m2", pos, 3)
	b.Items = world.ItemBag{"WOODEN_STICKS": 4}
	for _, g := range []*world.Group{a, b} {
		if err := w.Store.Commit(store.Update{w.GroupPath(pos, g.ID): g.Encode()}); err != nil {
			t.Fatalf("put group: %v", err)
		}
	}

	snap := snapshotOf(t, w, pos)
	u := world.NewUpdate()
	New().Merge(w, u, snap, 60000, rand.New(rand.NewPCG(1, 2)))
	if err := u.Commit(w.Store, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tile, err := w.LoadTile(pos)
	if err != nil {
		t.Fatalf("load tile: %v", err)
	}
	if len(tile.Groups) != 1 {
		t.Fatalf("expected one merged group, got %d", len(tile.Groups))
	}
	merged := tile.Groups["m1"]
	if merged == nil {
		t.Fatalf("first group must absorb the rest")
	}
	if len(merged.Units) != 5 {
		t.Fatalf("expected 5 units after merge, got %d", len(merged.Units))
	}
	if merged.Items["WOODEN_STICKS"] != 4 {
		t.Fatalf("items must carry over, got %v", merged.Items)
	}
}

func TestMergeLeavesPlayerGroupsAlone(t *testing.T) {
	w := testSetup(t)
	pos := world.TilePos{X: 1, Y: 1}
	m := monsterGroup("m1", pos, 2)
	p := &world.Group{
		ID: "pg", Owner: "p1", X: pos.X, Y: pos.Y, Status: world.StatusIdle,
		Units: map[string]world.Unit{"u1": {Type: "militia"}},
	}
	for _, g := range []*world.Group{m, p} {
		if err := w.Store.Commit(store.Update{w.GroupPath(pos, g.ID): g.Encode()}); err != nil {
			t.Fatalf("put group: %v", err)
		}
	}

	snap := snapshotOf(t, w, pos)
	u := world.NewUpdate()
	New().Merge(w, u, snap, 60000, rand.New(rand.NewPCG(1, 2)))
	if err := u.Commit(w.Store, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tile, _ := w.LoadTile(pos)
	if _, ok := tile.Groups["pg"]; !ok {
		t.Fatalf("player group must be untouched by monster merging")
	}
}

func TestStrategyJoinsStructureAssault(t *testing.T) {
	w := testSetup(t)
	pos := world.TilePos{X: 2, Y: 2}
	m := monsterGroup("m1", pos, 3)
	if err := w.Store.Commit(store.Update{
		w.GroupPath(pos, m.ID): m.Encode(),
		w.BattlePath(pos, "b1"): (&world.Battle{
			ID: "b1", Status: world.BattleActive, StartedAt: 1,
			TargetTypes: []string{world.TargetStructure},
			StructureID: "s1",
			Side1:       world.BattleSide{Groups: map[string]bool{}},
			Side2:       world.BattleSide{Groups: map[string]bool{}},
		}).Encode(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	snap := snapshotOf(t, w, pos)
	u := world.NewUpdate()
	New().Strategy(w, u, snap, 60000, rand.New(rand.NewPCG(1, 2)))
	if err := u.Commit(w.Store, nil); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tile, _ := w.LoadTile(pos)
	g := tile.Groups["m1"]
	if g.Status != world.StatusFighting || g.BattleID != "b1" {
		t.Fatalf("monster must join the assault, got %+v", g)
	}
	if !tile.Battles["b1"].Side1.Groups["m1"] {
		t.Fatalf("battle record must list the monster group")
	}
}
