package world

import (
	"testing"

	"github.com/lmf-git/gisaima/server/store"
)

const groupBase = "worlds/w1/chunks/0,0/5,5/groups/g1"

func movingGroup() *Group {
	return &Group{
		ID: "g1", Owner: "p1", X: 5, Y: 5,
		Status:       StatusMoving,
		Units:        map[string]Unit{"u1": {Type: "militia"}},
		MovementPath: []TilePos{{5, 5}, {6, 5}},
		PathIndex:    0,
		NextMoveTime: 100,
		MoveStarted:  40,
		TargetX:      6, TargetY: 5,
	}
}

func fightingGroup() *Group {
	return &Group{
		ID: "g1", Owner: "p1", X: 5, Y: 5,
		Status:     StatusFighting,
		Units:      map[string]Unit{"u1": {Type: "militia"}},
		InBattle:   true,
		BattleID:   "b1",
		BattleSide: 1,
		BattleRole: RoleAttacker,
	}
}

// Two producers stage different statuses for the same group: the priority
// winner survives and the loser's movement fields are gone from the commit.
func TestSanitiseFightingBeatsMoving(t *testing.T) {
	u := NewUpdate()
	u.SetGroup(groupBase, movingGroup())
	u.SetGroup(groupBase, fightingGroup())

	w := u.Build(nil)
	record, ok := w[groupBase].(map[string]store.Value)
	if !ok {
		t.Fatalf("expected a group record at %s, got %T", groupBase, w[groupBase])
	}
	if record["status"] != string(StatusFighting) {
		t.Fatalf("expected fighting to win, got %v", record["status"])
	}
	for _, f := range []string{"movementPath", "pathIndex", "targetX", "targetY", "moveStarted", "nextMoveTime", "moveSpeed"} {
		if _, present := record[f]; present {
			t.Fatalf("field %s must not survive next to fighting", f)
		}
	}
	if record["battleId"] != "b1" {
		t.Fatalf("battle fields must survive, got %v", record["battleId"])
	}
}

func TestSanitiseOrderIndependent(t *testing.T) {
	u := NewUpdate()
	u.SetGroup(groupBase, fightingGroup())
	u.SetGroup(groupBase, movingGroup())

	record := u.Build(nil)[groupBase].(map[string]store.Value)
	if record["status"] != string(StatusFighting) {
		t.Fatalf("staging order must not matter, got %v", record["status"])
	}
}

func TestSanitiseFieldClaimScrubsSiblings(t *testing.T) {
	u := NewUpdate()
	// A movement producer staged field-level writes.
	u.Set(groupBase+"/movementPath", []store.Value{})
	u.Set(groupBase+"/pathIndex", int64(0))
	u.SetGroupFields(groupBase, StatusMoving, map[string]store.Value{
		"nextMoveTime": int64(500),
	})
	// The battle producer claims the group.
	u.SetGroupFields(groupBase, StatusFighting, map[string]store.Value{
		"battleId":   "b9",
		"battleSide": int64(1),
		"inBattle":   true,
	})

	w := u.Build(nil)
	if w[groupBase+"/status"] != string(StatusFighting) {
		t.Fatalf("expected fighting status write, got %v", w[groupBase+"/status"])
	}
	if v, present := w[groupBase+"/movementPath"]; present && v != nil {
		t.Fatalf("staged movementPath write must be scrubbed, got %v", v)
	}
	if v, present := w[groupBase+"/nextMoveTime"]; present && v != nil {
		t.Fatalf("losing claim's nextMoveTime must not survive, got %v", v)
	}
	if w[groupBase+"/battleId"] != "b9" {
		t.Fatalf("winner's fields must be staged")
	}
}

func TestDeleteGroupBeatsLowerPriorityClaims(t *testing.T) {
	u := NewUpdate()
	u.SetGroup(groupBase, movingGroup())
	u.DeleteGroup(groupBase, StatusFighting)

	w := u.Build(nil)
	v, present := w[groupBase]
	if !present || v != nil {
		t.Fatalf("expected staged deletion, got %v (present=%v)", v, present)
	}
}

func TestSingleClaimPassesThrough(t *testing.T) {
	u := NewUpdate()
	g := movingGroup()
	u.SetGroup(groupBase, g)
	record := u.Build(nil)[groupBase].(map[string]store.Value)
	if record["status"] != string(StatusMoving) {
		t.Fatalf("single claim must keep its status, got %v", record["status"])
	}
	if _, present := record["movementPath"]; !present {
		t.Fatalf("moving record must keep its path")
	}
}
