package cmd

import (
	"fmt"

	"github.com/lmf-git/gisaima/server/world"
)

// MoveRequest orders a group along a path. When Path is empty a straight
// line is traced between the endpoints.
type MoveRequest struct {
	GroupID      string
	FromX, FromY int
	ToX, ToY     int
	Path         []world.TilePos
}

// Move puts an idle group on a movement path. The tick relocates it one
// step per interval.
func Move(c *Context, req MoveRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	from := world.TilePos{X: req.FromX, Y: req.FromY}
	to := world.TilePos{X: req.ToX, Y: req.ToY}
	if from == to {
		return Errorf(InvalidArgument, "destination equals origin")
	}
	t, cerr := c.loadTile(req.FromX, req.FromY)
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

	path := req.Path
	if len(path) == 0 {
		path = world.BresenhamPath(from, to)
		if len(path) > world.MaxPathLength {
			path = path[:world.MaxPathLength]
			to = path[len(path)-1]
		}
	}
	if err := world.ValidatePath(path, from, to); err != nil {
		return Errorf(InvalidArgument, "%v", err)
	}

	info, err := c.World.LoadInfo()
	if err != nil {
		return internalErr(err)
	}
	now := c.nowMillis()
	g.Status = world.StatusMoving
	g.MovementPath = path
	g.PathIndex = 0
	g.MoveStarted = now
	g.NextMoveTime = now + info.MoveDelay()
	g.TargetX, g.TargetY = to.X, to.Y

	u := world.NewUpdate()
	u.SetGroup(c.World.GroupPath(from, g.ID), g)
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventMove,
		Text:      fmt.Sprintf("%s set out from (%d, %d) to (%d, %d).", g.Name, from.X, from.Y, to.X, to.Y),
		Timestamp: now,
		Location:  &from,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
