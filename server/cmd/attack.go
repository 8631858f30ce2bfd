package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/world"
)

// AttackRequest opens a battle on a tile.
type AttackRequest struct {
	AttackerGroupIDs []string
	X, Y             int
	DefenderGroupIDs []string
	StructureID      string
}

// AttackResult reports the created battle.
type AttackResult struct {
	BattleID string
}

// Attack creates a battle between the caller's groups and the chosen
// defenders and/or structure on the tile. Every participant flips to the
// fighting state in the same commit.
func Attack(c *Context, req AttackRequest) (*AttackResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if len(req.AttackerGroupIDs) == 0 {
		return nil, Errorf(InvalidArgument, "no attackers selected")
	}
	if len(req.DefenderGroupIDs) == 0 && req.StructureID == "" {
		return nil, Errorf(InvalidArgument, "no targets selected")
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	t, cerr := c.loadTile(req.X, req.Y)
	if cerr != nil {
		return nil, cerr
	}

	attackers := make([]*world.Group, 0, len(req.AttackerGroupIDs))
	for _, id := range req.AttackerGroupIDs {
		g, cerr := ownedGroup(c, t, id)
		if cerr != nil {
			return nil, cerr
		}
		if g.InBattle {
			return nil, Errorf(FailedPrecondition, "group %s is already in battle", id)
		}
		if g.Status != world.StatusIdle {
			return nil, Errorf(FailedPrecondition, "group %s is busy (%s)", id, g.Status)
		}
		attackers = append(attackers, g)
	}

	defenders := make([]*world.Group, 0, len(req.DefenderGroupIDs))
	for _, id := range req.DefenderGroupIDs {
		g, ok := t.Groups[id]
		if !ok {
			return nil, Errorf(NotFound, "defender %s is not on this tile", id)
		}
		if g.Owner == c.UID {
			return nil, Errorf(PermissionDenied, "cannot attack your own group %s", id)
		}
		if g.InBattle {
			return nil, Errorf(FailedPrecondition, "group %s is already in battle", id)
		}
		defenders = append(defenders, g)
	}

	var targetTypes []string
	if len(defenders) > 0 {
		targetTypes = append(targetTypes, world.TargetGroup)
	}
	var structurePower int64
	if req.StructureID != "" {
		s := t.Structure
		if s == nil || s.ID != req.StructureID {
			return nil, Errorf(NotFound, "structure %s is not on this tile", req.StructureID)
		}
		if s.Public() {
			return nil, Errorf(PermissionDenied, "spawn structures cannot be attacked")
		}
		if s.Owner == c.UID {
			return nil, Errorf(PermissionDenied, "cannot attack your own structure")
		}
		if s.InBattle {
			return nil, Errorf(FailedPrecondition, "structure is already under attack")
		}
		targetTypes = append(targetTypes, world.TargetStructure)
		structurePower = s.DefensivePower()
	}

	now := c.nowMillis()
	battleID := uuid.NewString()
	b := &world.Battle{
		ID:          battleID,
		Status:      world.BattleActive,
		StartedAt:   now,
		TargetTypes: targetTypes,
		StructureID: req.StructureID,
		Side1:       world.BattleSide{Groups: map[string]bool{}},
		Side2:       world.BattleSide{Groups: map[string]bool{}},
	}

	u := world.NewUpdate()
	for _, g := range attackers {
		b.Side1.Groups[g.ID] = true
		b.Side1Power += g.Power()
		enterBattle(g, battleID, 1, world.RoleAttacker)
		u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	}
	for _, g := range defenders {
		b.Side2.Groups[g.ID] = true
		b.DefenderGroupPower += g.Power()
		enterBattle(g, battleID, 2, world.RoleDefender)
		u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	}
	b.StructurePower = structurePower
	b.Side2Power = b.DefenderGroupPower + structurePower
	b.AddEvent(world.EventBattleStart, "", now, "battle started")

	if req.StructureID != "" {
		t.Structure.InBattle = true
		u.Set(c.World.StructurePath(pos), t.Structure.Encode())
	}
	u.Set(c.World.BattlePath(pos, battleID), b.Encode())
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventBattleStart,
		Text:      fmt.Sprintf("A battle has started at (%d, %d).", req.X, req.Y),
		Timestamp: now,
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &AttackResult{BattleID: battleID}, nil
}

func enterBattle(g *world.Group, battleID string, side int64, role string) {
	g.Status = world.StatusFighting
	g.InBattle = true
	g.BattleID = battleID
	g.BattleSide = side
	g.BattleRole = role
}
