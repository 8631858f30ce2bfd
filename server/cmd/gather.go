package cmd

import (
	"fmt"

	"github.com/lmf-git/gisaima/server/world"
)

// GatherRequest puts a group to work collecting the tile's resources.
type GatherRequest struct {
	GroupID string
	X, Y    int
}

// Gather starts a gather order. The tick counts it down and rolls the
// biome's yield table on completion.
func Gather(c *Context, req GatherRequest) error {
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
	if g.Status != world.StatusIdle {
		return Errorf(FailedPrecondition, "group is busy (%s)", g.Status)
	}

	biome := t.Biome
	if biome == "" {
		biome = world.DefaultBiome
	}
	g.Status = world.StatusGathering
	g.GatheringBiome = biome
	g.GatheringTicksRemaining = world.GatheringTicks

	u := world.NewUpdate()
	u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventGather,
		Text:      fmt.Sprintf("%s began gathering in the %s at (%d, %d).", g.Name, biome, req.X, req.Y),
		Timestamp: c.nowMillis(),
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
