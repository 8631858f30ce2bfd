package cmd

import (
	"fmt"

	"github.com/lmf-git/gisaima/server/world"
)

// Storage destinations for demobilisation.
const (
	StorageShared   = "shared"
	StoragePersonal = "personal"
)

// DemobiliseRequest dissolves a group into the structure on its tile.
type DemobiliseRequest struct {
	GroupID            string
	X, Y               int
	StorageDestination string
}

// Demobilise marks a group for dissolution into the tile's structure. The
// tick performs the actual unit merge and item transfer.
func Demobilise(c *Context, req DemobiliseRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	dest := req.StorageDestination
	switch dest {
	case "":
		dest = StorageShared
	case StorageShared, StoragePersonal:
	default:
		return Errorf(InvalidArgument, "unknown storage destination %q", dest)
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
	if g.Status == world.StatusDemobilising {
		return Errorf(FailedPrecondition, "group is already demobilising")
	}
	if g.Status != world.StatusIdle {
		return Errorf(FailedPrecondition, "group is busy (%s)", g.Status)
	}
	if t.Structure == nil {
		return Errorf(FailedPrecondition, "no structure on this tile")
	}

	g.Status = world.StatusDemobilising
	g.TargetStructureID = t.Structure.ID
	g.StorageDestination = dest

	u := world.NewUpdate()
	u.SetGroup(c.World.GroupPath(pos, g.ID), g)
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventDemobilise,
		Text:      fmt.Sprintf("%s is demobilising at (%d, %d).", g.Name, req.X, req.Y),
		Timestamp: c.nowMillis(),
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
