package cmd

import (
	"fmt"

	"github.com/lmf-git/gisaima/server/world"
)

// JoinBattleRequest reinforces one side of an ongoing battle.
type JoinBattleRequest struct {
	GroupID  string
	BattleID string
	Side     int64
	X, Y     int
}

// JoinBattle adds the caller's group to a battle as a supporter.
func JoinBattle(c *Context, req JoinBattleRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	if req.Side != 1 && req.Side != 2 {
		return Errorf(InvalidArgument, "side must be 1 or 2")
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	t, cerr := c.loadTile(req.X, req.Y)
	if cerr != nil {
		return cerr
	}
	g, cerr := ownedGroup(c, t, req.GroupID)
	if cerr != nil {
		return cerr
	}
	if g.InBattle {
		return Errorf(FailedPrecondition, "group is already in battle")
	}
	if g.Status != world.StatusIdle {
		return Errorf(FailedPrecondition, "group is busy (%s)", g.Status)
	}
	b, ok := t.Battles[req.BattleID]
	if !ok {
		return Errorf(NotFound, "battle %s is not on this tile", req.BattleID)
	}

	now := c.nowMillis()
	enterBattle(g, b.ID, req.Side, world.RoleSupporter)
	b.Side(req.Side).Groups[g.ID] = true
	if req.Side == 1 {
		b.Side1Power += g.Power()
	} else {
		b.DefenderGroupPower += g.Power()
		b.Side2Power += g.Power()
	}
	b.AddEvent(world.EventBattleJoin, g.ID, now, fmt.Sprintf("%s joined side %d", g.Name, req.Side))

	u := world.NewUpdate()
	u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	u.Set(c.World.BattlePath(pos, b.ID), b.Encode())
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventBattleJoin,
		Text:      fmt.Sprintf("%s joined the battle at (%d, %d).", g.Name, req.X, req.Y),
		Timestamp: now,
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}

// FleeBattleRequest asks a fighting group to run.
type FleeBattleRequest struct {
	GroupID string
	X, Y    int
}

// FleeBattle marks the group as fleeing. The next battle round performs the
// exit and applies the flee casualty rate.
func FleeBattle(c *Context, req FleeBattleRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	t, cerr := c.loadTile(req.X, req.Y)
	if cerr != nil {
		return cerr
	}
	g, cerr := ownedGroup(c, t, req.GroupID)
	if cerr != nil {
		return cerr
	}
	if !g.InBattle || g.Status != world.StatusFighting {
		return Errorf(FailedPrecondition, "group is not fighting")
	}
	b, ok := t.Battles[g.BattleID]
	if !ok {
		return Errorf(NotFound, "battle %s is gone", g.BattleID)
	}

	tick := b.TickCount
	g.Status = world.StatusFleeing
	g.FleeTickRequested = &tick

	u := world.NewUpdate()
	u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
