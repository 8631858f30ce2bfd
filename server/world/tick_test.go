package world

import (
	"log/slog"
	"reflect"
	"testing"

	"github.com/lmf-git/gisaima/server/store"
)

const (
	testWorldID = "w1"
	testTick    = int64(60000)
)

func testWorld(t *testing.T) (*World, *store.Memory, *Ticker) {
	t.Helper()
	mem := store.NewMemory()
	w := New(testWorldID, mem, slog.Default())
	info := Info{Seed: 42, Speed: 1, TickInterval: testTick}
	if err := mem.Commit(store.Update{w.InfoPath(): info.Encode()}); err != nil {
		t.Fatalf("seed info: %v", err)
	}
	tk := NewTicker(TickerConfig{Store: mem})
	tk.Register(w)
	return w, mem, tk
}

func putGroup(t *testing.T, w *World, g *Group) {
	t.Helper()
	if err := w.Store.Commit(store.Update{w.GroupPath(g.Pos(), g.ID): g.Encode()}); err != nil {
		t.Fatalf("put group %s: %v", g.ID, err)
	}
}

func getGroup(t *testing.T, w *World, pos TilePos, id string) *Group {
	t.Helper()
	tile, err := w.LoadTile(pos)
	if err != nil {
		t.Fatalf("load tile %s: %v", pos.Key(), err)
	}
	return tile.Groups[id]
}

func unitMap(count int, unitType string, strength int64) map[string]Unit {
	units := make(map[string]Unit, count)
	for i := 0; i < count; i++ {
		units[unitType+"_"+string(rune('a'+i))] = Unit{Type: unitType, Strength: strength}
	}
	return units
}

// checkTileInvariants asserts location consistency and canonical keying for
// every stored group.
func checkTileInvariants(t *testing.T, w *World) {
	t.Helper()
	v, err := w.Store.Read(store.Join("worlds", w.ID, "chunks"))
	if err != nil {
		t.Fatalf("read chunks: %v", err)
	}
	for chunkKey, chunkVal := range Map(v) {
		for tileKey, tileVal := range Map(chunkVal) {
			pos, err := ParseTileKey(tileKey)
			if err != nil {
				t.Fatalf("non-canonical tile key %q", tileKey)
			}
			if pos.Chunk().Key() != chunkKey {
				t.Fatalf("tile %q stored under chunk %q", tileKey, chunkKey)
			}
			tile := DecodeTile(pos, tileVal)
			for id, g := range tile.Groups {
				if g.X != pos.X || g.Y != pos.Y {
					t.Fatalf("group %s at (%d,%d) stored on tile %s", id, g.X, g.Y, tileKey)
				}
				if g.Status == StatusMoving && len(g.MovementPath) > 0 {
					if g.MovementPath[g.PathIndex] != pos {
						t.Fatalf("moving group %s path index %d does not match its tile", id, g.PathIndex)
					}
				}
			}
		}
	}
}

func TestMobilizingBecomesIdleAfterTick(t *testing.T) {
	w, _, tk := testWorld(t)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", Name: "Scouts", X: 0, Y: 0,
		Status: StatusMobilizing,
		Units:  unitMap(2, "militia", 1),
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	g := getGroup(t, w, TilePos{0, 0}, "g1")
	if g == nil || g.Status != StatusIdle {
		t.Fatalf("expected idle after first tick, got %+v", g)
	}
}

func TestMoveArrivesAfterThreeTicks(t *testing.T) {
	w, _, tk := testWorld(t)
	now := int64(1_000_000)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", Name: "Column", X: 0, Y: 0,
		Status:       StatusMoving,
		Units:        unitMap(3, "human_warrior", 2),
		MovementPath: []TilePos{{0, 0}, {1, 0}, {2, 0}, {3, 0}},
		PathIndex:    0,
		MoveStarted:  now,
		NextMoveTime: now + testTick,
		TargetX:      3, TargetY: 0,
	})

	positions := []TilePos{{1, 0}, {2, 0}, {3, 0}}
	for i, want := range positions {
		tickNow := now + int64(i+1)*testTick
		if err := tk.TickWorld(w, tickNow); err != nil {
			t.Fatalf("tick %d: %v", i+1, err)
		}
		g := getGroup(t, w, want, "g1")
		if g == nil {
			t.Fatalf("after tick %d the group is not at %s", i+1, want.Key())
		}
		checkTileInvariants(t, w)
	}

	g := getGroup(t, w, TilePos{3, 0}, "g1")
	if g.Status != StatusIdle {
		t.Fatalf("expected idle on arrival, got %s", g.Status)
	}
	if len(g.MovementPath) != 0 || g.NextMoveTime != 0 {
		t.Fatalf("movement fields must be cleared on arrival: %+v", g)
	}
	if g.Pos().Chunk().Key() != "0,0" {
		t.Fatalf("unexpected chunk %s", g.Pos().Chunk().Key())
	}
}

func TestMoveWaitsForStepTimer(t *testing.T) {
	w, _, tk := testWorld(t)
	now := int64(1_000_000)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: 0, Y: 0,
		Status:       StatusMoving,
		Units:        unitMap(1, "militia", 1),
		MovementPath: []TilePos{{0, 0}, {1, 0}},
		NextMoveTime: now + testTick,
	})

	// Half an interval early: the group must not move.
	if err := tk.TickWorld(w, now+testTick/2); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if g := getGroup(t, w, TilePos{0, 0}, "g1"); g == nil || g.Status != StatusMoving {
		t.Fatalf("group moved before its step timer elapsed")
	}
}

func TestMovingGroupCrossesChunksNegative(t *testing.T) {
	w, _, tk := testWorld(t)
	now := int64(500_000)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: -20, Y: -20,
		Status:       StatusMoving,
		Units:        unitMap(1, "militia", 1),
		MovementPath: []TilePos{{-20, -20}, {-21, -21}},
		NextMoveTime: now,
	})

	if err := tk.TickWorld(w, now); err != nil {
		t.Fatalf("tick: %v", err)
	}
	g := getGroup(t, w, TilePos{-21, -21}, "g1")
	if g == nil {
		t.Fatalf("group did not relocate to (-21,-21)")
	}
	if g.Pos().Chunk().Key() != "-2,-2" {
		t.Fatalf("expected chunk -2,-2, got %s", g.Pos().Chunk().Key())
	}
	if old := getGroup(t, w, TilePos{-20, -20}, "g1"); old != nil {
		t.Fatalf("group must be removed from the old chunk")
	}
	checkTileInvariants(t, w)
}

func TestGatheringYieldsItems(t *testing.T) {
	w, _, tk := testWorld(t)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", Name: "Foragers", X: 2, Y: 2,
		Status:                  StatusGathering,
		Units:                   unitMap(2, "militia", 1),
		GatheringBiome:          "plains",
		GatheringTicksRemaining: 2,
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	g := getGroup(t, w, TilePos{2, 2}, "g1")
	if g.Status != StatusGathering || g.GatheringTicksRemaining != 1 {
		t.Fatalf("expected one tick remaining, got %+v", g)
	}

	if err := tk.TickWorld(w, 2*testTick); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	g = getGroup(t, w, TilePos{2, 2}, "g1")
	if g.Status != StatusIdle {
		t.Fatalf("expected idle after gathering, got %s", g.Status)
	}
	if g.Items["WOODEN_STICKS"] < 1 {
		t.Fatalf("plains gathering must yield sticks, got %v", g.Items)
	}
}

func TestDemobiliseMergesIntoStructure(t *testing.T) {
	w, _, tk := testWorld(t)
	pos := TilePos{4, 4}
	s := &Structure{
		ID: "s1", Owner: "p1", Type: "outpost", Name: "Camp", Level: 1,
		Status: StructureIdle,
	}
	if err := w.Store.Commit(store.Update{w.StructurePath(pos): s.Encode()}); err != nil {
		t.Fatalf("put structure: %v", err)
	}
	units := unitMap(3, "militia", 1)
	units["p1"] = Unit{Type: "player", Name: "Hero", Owner: "p1"}
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", Name: "Returners", X: pos.X, Y: pos.Y,
		Status:             StatusDemobilising,
		Units:              units,
		Items:              ItemBag{"WOODEN_STICKS": 7},
		TargetStructureID:  "s1",
		StorageDestination: "shared",
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}

	tile, err := w.LoadTile(pos)
	if err != nil {
		t.Fatalf("load tile: %v", err)
	}
	if _, gone := tile.Groups["g1"]; gone {
		t.Fatalf("demobilised group must be deleted")
	}
	if got := len(tile.Structure.Units); got != 3 {
		t.Fatalf("expected 3 garrisoned units, got %d", got)
	}
	if tile.Structure.Items["WOODEN_STICKS"] != 7 {
		t.Fatalf("items must transfer to shared storage, got %v", tile.Structure.Items)
	}
	p, ok := tile.Players["p1"]
	if !ok || !p.Alive {
		t.Fatalf("player must reappear alive on the tile, got %+v", p)
	}
}

func TestDemobilisePersonalBank(t *testing.T) {
	w, _, tk := testWorld(t)
	pos := TilePos{4, 5}
	s := &Structure{ID: "s1", Owner: "other", Type: "outpost", Level: 1, Status: StructureIdle}
	if err := w.Store.Commit(store.Update{w.StructurePath(pos): s.Encode()}); err != nil {
		t.Fatalf("put structure: %v", err)
	}
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: pos.X, Y: pos.Y,
		Status:             StatusDemobilising,
		Units:              unitMap(1, "militia", 1),
		Items:              ItemBag{"STONE_PIECES": 4},
		TargetStructureID:  "s1",
		StorageDestination: "personal",
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	tile, _ := w.LoadTile(pos)
	if tile.Structure.Banks["p1"]["STONE_PIECES"] != 4 {
		t.Fatalf("items must land in the personal bank, got %v", tile.Structure.Banks)
	}
	if tile.Structure.Items.Total() != 0 {
		t.Fatalf("shared storage must stay empty, got %v", tile.Structure.Items)
	}
}

func TestStructureBuildCompletes(t *testing.T) {
	w, _, tk := testWorld(t)
	pos := TilePos{6, 6}
	s := &Structure{
		ID: "s1", Owner: "p1", Type: "outpost", Name: "Watch", Level: 1,
		Status: StructureBuilding, BuildProgress: 0, BuildTotalTime: 1, Builder: "g1",
	}
	if err := w.Store.Commit(store.Update{w.StructurePath(pos): s.Encode()}); err != nil {
		t.Fatalf("put structure: %v", err)
	}
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: pos.X, Y: pos.Y,
		Status: StatusBuilding,
		Units:  unitMap(2, "militia", 1),
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	tile, _ := w.LoadTile(pos)
	if tile.Structure.Status != StructureIdle {
		t.Fatalf("structure must finish, got %s", tile.Structure.Status)
	}
	if tile.Structure.Builder != "" {
		t.Fatalf("builder link must be cleared")
	}
	if g := tile.Groups["g1"]; g == nil || g.Status != StatusIdle {
		t.Fatalf("builder must return to idle, got %+v", g)
	}
}

func TestRecruitmentProducesUnits(t *testing.T) {
	w, _, tk := testWorld(t)
	pos := TilePos{7, 7}
	s := &Structure{
		ID: "s1", Owner: "p1", Type: "outpost", Level: 1, Status: StructureIdle,
		RecruitmentQueue: map[string]Recruitment{
			"r1": {ID: "r1", Owner: "p1", UnitType: "militia", Quantity: 3, TicksRequired: 2, QueuedAt: 1},
		},
	}
	if err := w.Store.Commit(store.Update{w.StructurePath(pos): s.Encode()}); err != nil {
		t.Fatalf("put structure: %v", err)
	}

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if err := tk.TickWorld(w, 2*testTick); err != nil {
		t.Fatalf("tick 2: %v", err)
	}

	tile, _ := w.LoadTile(pos)
	if got := len(tile.Structure.Units); got != 3 {
		t.Fatalf("expected 3 trained units, got %d", got)
	}
	for _, u := range tile.Structure.Units {
		if u.Owner != "p1" || u.Type != "militia" {
			t.Fatalf("trained unit has wrong identity: %+v", u)
		}
	}
	if len(tile.Structure.RecruitmentQueue) != 0 {
		t.Fatalf("queue entry must be removed, got %v", tile.Structure.RecruitmentQueue)
	}
}

func TestUpgradeCompletes(t *testing.T) {
	w, _, tk := testWorld(t)
	pos := TilePos{8, 8}
	s := &Structure{
		ID: "s1", Owner: "p1", Type: "outpost", Level: 1,
		Status: StructureUpgrading, UpgradeInProgress: true, UpgradeID: "u1", UpgradeCompletesAt: testTick,
	}
	up := &Upgrade{
		ID: "u1", Owner: "p1", Pos: pos, StructureID: "s1",
		FromLevel: 1, ToLevel: 2, StartedAt: 0, CompletesAt: testTick, Status: UpgradePending,
	}
	if err := w.Store.Commit(store.Update{
		w.StructurePath(pos): s.Encode(),
		w.UpgradePath("u1"):  up.Encode(),
	}); err != nil {
		t.Fatalf("seed upgrade: %v", err)
	}

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	tile, _ := w.LoadTile(pos)
	if tile.Structure.Level != 2 {
		t.Fatalf("expected level 2, got %d", tile.Structure.Level)
	}
	if tile.Structure.Status != StructureIdle || tile.Structure.UpgradeInProgress {
		t.Fatalf("upgrade stamp must be cleared: %+v", tile.Structure)
	}
	if v, _ := w.Store.Read(w.UpgradePath("u1")); v != nil {
		t.Fatalf("upgrade record must be deleted")
	}
}

func TestCraftCompletes(t *testing.T) {
	w, _, tk := testWorld(t)
	p := &PlayerRecord{UID: "p1", Race: "human", Alive: true, CraftingID: "c1"}
	c := &Craft{ID: "c1", Owner: "p1", RecipeID: "wooden_spear", StartedAt: 0, CompletesAt: testTick}
	if err := w.Store.Commit(store.Update{
		w.PlayerRecordPath("p1"): p.Encode(),
		w.CraftingPath("c1"):     c.Encode(),
	}); err != nil {
		t.Fatalf("seed craft: %v", err)
	}

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	got, err := w.LoadPlayer("p1")
	if err != nil {
		t.Fatalf("load player: %v", err)
	}
	if got.Inventory["WOODEN_SPEAR"] != 1 {
		t.Fatalf("crafted output missing, inventory %v", got.Inventory)
	}
	if got.CraftingID != "" {
		t.Fatalf("crafting.current must be cleared")
	}
	if got.Crafting.XP == 0 {
		t.Fatalf("crafting xp must be awarded")
	}
	if v, _ := w.Store.Read(w.CraftingPath("c1")); v != nil {
		t.Fatalf("craft record must be deleted")
	}
}

func TestTransitionalStatusesAreSkipped(t *testing.T) {
	w, _, tk := testWorld(t)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: 9, Y: 9,
		Status:            StatusCancelling,
		Units:             unitMap(1, "militia", 1),
		MovementPath:      []TilePos{{9, 9}, {10, 9}},
		NextMoveTime:      1,
		CancelRequestTime: 1,
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	g := getGroup(t, w, TilePos{9, 9}, "g1")
	if g == nil || g.Status != StatusCancelling {
		t.Fatalf("cancelling group must not be advanced by the tick, got %+v", g)
	}
}

func TestTickIdempotentAtSameNow(t *testing.T) {
	w, mem, tk := testWorld(t)
	putGroup(t, w, &Group{
		ID: "g1", Owner: "p1", X: 0, Y: 0,
		Status:                  StatusGathering,
		Units:                   unitMap(1, "militia", 1),
		GatheringBiome:          "plains",
		GatheringTicksRemaining: 2,
	})

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	before, _ := mem.Read("worlds")
	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	after, _ := mem.Read("worlds")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("second tick at the same now must be a no-op")
	}
}

func TestTickStampsInfo(t *testing.T) {
	w, _, tk := testWorld(t)
	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	info, err := w.LoadInfo()
	if err != nil {
		t.Fatalf("load info: %v", err)
	}
	if info.LastTick != testTick {
		t.Fatalf("lastTick not stamped, got %d", info.LastTick)
	}
	if len(info.LastTickHash) != 64 {
		t.Fatalf("expected a 32-byte hex digest, got %q", info.LastTickHash)
	}
}

func TestChatPruningKeepsNewest(t *testing.T) {
	w, _, tk := testWorld(t)
	u := NewUpdate()
	for i := 0; i < MaxChatHistory+25; i++ {
		w.StageChatEvent(u, ChatEvent{Kind: EventMove, Text: "x", Timestamp: int64(i)})
	}
	if err := u.Commit(w.Store, nil); err != nil {
		t.Fatalf("seed chat: %v", err)
	}

	if err := tk.TickWorld(w, testTick); err != nil {
		t.Fatalf("tick: %v", err)
	}
	v, _ := w.Store.Read(store.Join("worlds", w.ID, "chat"))
	msgs := Map(v)
	// The tick itself may add events; pruning plus additions must stay at or
	// under the cap plus this tick's additions.
	if len(msgs) > MaxChatHistory+5 {
		t.Fatalf("chat not pruned, %d messages remain", len(msgs))
	}
	for key, mv := range msgs {
		if ts := IntOr(field(Map(mv), "timestamp"), -1); ts >= 0 && ts < 25 {
			t.Fatalf("an oldest message survived pruning: %s (ts %d)", key, ts)
		}
	}
}
