package cmd

import (
	"strings"
	"testing"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

func chatHasKind(t *testing.T, w *world.World, kind string) bool {
	t.Helper()
	v, err := w.Store.Read(store.Join("worlds", w.ID, "chat"))
	if err != nil {
		t.Fatalf("read chat: %v", err)
	}
	for key := range world.Map(v) {
		if strings.HasPrefix(key, kind+"_") {
			return true
		}
	}
	return false
}

func seedSkirmish(t *testing.T, c *Context, w *world.World) (world.TilePos, string) {
	t.Helper()
	pos := world.TilePos{X: 5, Y: 5}
	putGroup(t, w, &world.Group{
		ID: "a1", Owner: "p1", Name: "Raiders", X: pos.X, Y: pos.Y,
		Status: world.StatusIdle,
		Units: map[string]world.Unit{
			"w1": {Type: "human_warrior", Strength: 2},
			"w2": {Type: "human_warrior", Strength: 2},
			"w3": {Type: "human_warrior", Strength: 2},
			"w4": {Type: "human_warrior", Strength: 2},
			"w5": {Type: "human_warrior", Strength: 2},
		},
	})
	putGroup(t, w, &world.Group{
		ID: "d1", Owner: "p2", Name: "Garrison", X: pos.X, Y: pos.Y,
		Status: world.StatusIdle,
		Units:  militia(4),
	})
	putStructure(t, w, pos, &world.Structure{
		ID: "s1", Owner: "p2", Type: "fortress", Name: "Keep", Level: 1, Status: world.StructureIdle,
	})

	res, err := Attack(c, AttackRequest{
		AttackerGroupIDs: []string{"a1"},
		X:                pos.X, Y: pos.Y,
		DefenderGroupIDs: []string{"d1"},
		StructureID:      "s1",
	})
	if err != nil {
		t.Fatalf("attack failed: %v", err)
	}
	return pos, res.BattleID
}

func TestAttackCreatesBattle(t *testing.T) {
	c, w := newContext(t, "p1")
	pos, battleID := seedSkirmish(t, c, w)

	tile := loadTile(t, w, pos)
	b := tile.Battles[battleID]
	if b == nil {
		t.Fatalf("battle record missing")
	}
	if b.Side1Power != 10 {
		t.Fatalf("side1Power = %d, want 10", b.Side1Power)
	}
	if b.Side2Power != 34 || b.StructurePower != 30 || b.DefenderGroupPower != 4 {
		t.Fatalf("side2 powers wrong: %+v", b)
	}
	if !b.Side1.Groups["a1"] || !b.Side2.Groups["d1"] {
		t.Fatalf("sides not recorded: %+v", b)
	}

	a := tile.Groups["a1"]
	if a.Status != world.StatusFighting || !a.InBattle || a.BattleSide != 1 || a.BattleRole != world.RoleAttacker {
		t.Fatalf("attacker state wrong: %+v", a)
	}
	d := tile.Groups["d1"]
	if d.Status != world.StatusFighting || d.BattleSide != 2 || d.BattleRole != world.RoleDefender {
		t.Fatalf("defender state wrong: %+v", d)
	}
	if !tile.Structure.InBattle {
		t.Fatalf("structure must be marked inBattle")
	}
	if !chatHasKind(t, w, world.EventBattleStart) {
		t.Fatalf("chat must contain battle_start")
	}
}

// The full arc of the outnumbered assault: side 1 is ground down over the
// battle rounds, its group is deleted, the structure is retained and the
// battle record removed.
func TestAttackResolvesOverTicks(t *testing.T) {
	c, w := newContext(t, "p1")
	pos, _ := seedSkirmish(t, c, w)

	tk := world.NewTicker(world.TickerConfig{Store: w.Store})
	for i := int64(1); i <= 6; i++ {
		if err := tk.TickWorld(w, testNow+i*60000); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if len(loadTile(t, w, pos).Battles) == 0 {
			break
		}
	}

	tile := loadTile(t, w, pos)
	if len(tile.Battles) != 0 {
		t.Fatalf("battle must resolve")
	}
	if _, alive := tile.Groups["a1"]; alive {
		t.Fatalf("beaten attacker must be deleted")
	}
	if tile.Structure == nil || tile.Structure.Owner != "p2" {
		t.Fatalf("structure must survive with its owner")
	}
	if !chatHasKind(t, w, world.EventBattleStart) || !chatHasKind(t, w, world.EventBattleEnd) {
		t.Fatalf("chat must contain battle_start and battle_end")
	}
}

func TestAttackSpawnRejected(t *testing.T) {
	c, w := newContext(t, "p1")
	pos := world.TilePos{X: 1, Y: 1}
	putGroup(t, w, &world.Group{
		ID: "a1", Owner: "p1", X: 1, Y: 1, Status: world.StatusIdle, Units: militia(2),
	})
	putStructure(t, w, pos, &world.Structure{ID: "sp", Type: world.StructureTypeSpawn, Level: 1, Status: world.StructureIdle})

	_, err := Attack(c, AttackRequest{AttackerGroupIDs: []string{"a1"}, X: 1, Y: 1, StructureID: "sp"})
	wantKind(t, err, PermissionDenied)
}

func TestAttackOwnTargetsRejected(t *testing.T) {
	c, w := newContext(t, "p1")
	putGroup(t, w, &world.Group{ID: "a1", Owner: "p1", X: 0, Y: 0, Status: world.StatusIdle, Units: militia(1)})
	putGroup(t, w, &world.Group{ID: "a2", Owner: "p1", X: 0, Y: 0, Status: world.StatusIdle, Units: militia(1)})

	_, err := Attack(c, AttackRequest{AttackerGroupIDs: []string{"a1"}, DefenderGroupIDs: []string{"a2"}})
	wantKind(t, err, PermissionDenied)
}

func TestAttackNeedsTargets(t *testing.T) {
	c, w := newContext(t, "p1")
	putGroup(t, w, &world.Group{ID: "a1", Owner: "p1", X: 0, Y: 0, Status: world.StatusIdle, Units: militia(1)})

	_, err := Attack(c, AttackRequest{AttackerGroupIDs: []string{"a1"}})
	wantKind(t, err, InvalidArgument)
}

func TestAttackBusyAttackerRejected(t *testing.T) {
	c, w := newContext(t, "p1")
	putGroup(t, w, &world.Group{
		ID: "a1", Owner: "p1", X: 0, Y: 0, Status: world.StatusMoving, Units: militia(1),
		MovementPath: []world.TilePos{{0, 0}, {1, 0}}, NextMoveTime: 1,
	})
	putGroup(t, w, &world.Group{ID: "d1", Owner: "p2", X: 0, Y: 0, Status: world.StatusIdle, Units: militia(1)})

	_, err := Attack(c, AttackRequest{AttackerGroupIDs: []string{"a1"}, DefenderGroupIDs: []string{"d1"}})
	wantKind(t, err, FailedPrecondition)
}

func TestJoinBattleAsSupporter(t *testing.T) {
	c, w := newContext(t, "p1")
	pos, battleID := seedSkirmish(t, c, w)
	putGroup(t, w, &world.Group{
		ID: "r1", Owner: "p1", Name: "Relief", X: pos.X, Y: pos.Y,
		Status: world.StatusIdle, Units: militia(2),
	})

	if err := JoinBattle(c, JoinBattleRequest{GroupID: "r1", BattleID: battleID, Side: 1, X: pos.X, Y: pos.Y}); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	tile := loadTile(t, w, pos)
	g := tile.Groups["r1"]
	if g.Status != world.StatusFighting || g.BattleRole != world.RoleSupporter || g.BattleSide != 1 {
		t.Fatalf("supporter state wrong: %+v", g)
	}
	b := tile.Battles[battleID]
	if !b.Side1.Groups["r1"] {
		t.Fatalf("battle side must record the supporter")
	}
	if b.Side1Power != 12 {
		t.Fatalf("side1Power must include the supporter, got %d", b.Side1Power)
	}
	joined := false
	for _, e := range b.Events {
		if e.Type == world.EventBattleJoin && e.GroupID == "r1" {
			joined = true
		}
	}
	if !joined {
		t.Fatalf("battle events must record the join")
	}
}

func TestJoinBattleInvalidSide(t *testing.T) {
	c, w := newContext(t, "p1")
	pos, battleID := seedSkirmish(t, c, w)
	putGroup(t, w, &world.Group{ID: "r1", Owner: "p1", X: pos.X, Y: pos.Y, Status: world.StatusIdle, Units: militia(1)})

	err := JoinBattle(c, JoinBattleRequest{GroupID: "r1", BattleID: battleID, Side: 3, X: pos.X, Y: pos.Y})
	wantKind(t, err, InvalidArgument)
}

func TestFleeBattleMarksGroup(t *testing.T) {
	c, w := newContext(t, "p1")
	pos, battleID := seedSkirmish(t, c, w)

	if err := FleeBattle(c, FleeBattleRequest{GroupID: "a1", X: pos.X, Y: pos.Y}); err != nil {
		t.Fatalf("flee failed: %v", err)
	}
	g := loadTile(t, w, pos).Groups["a1"]
	if g.Status != world.StatusFleeing {
		t.Fatalf("expected fleeing, got %s", g.Status)
	}
	if g.FleeTickRequested == nil {
		t.Fatalf("fleeTickRequested must be recorded")
	}
	if g.BattleID != battleID {
		t.Fatalf("fleeing group keeps its battle reference until the resolver exits it")
	}

	err := FleeBattle(c, FleeBattleRequest{GroupID: "a1", X: pos.X, Y: pos.Y})
	wantKind(t, err, FailedPrecondition)
}
