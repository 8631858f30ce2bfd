package cmd

import (
	"github.com/lmf-git/gisaima/server/world"
)

// CancelRequest aborts a group's in-flight movement or gathering.
type CancelRequest struct {
	GroupID string
	X, Y    int
}

// CancelMove aborts a movement order. Cancellation is two-phase to avoid
// racing the tick: the first commit parks the group in the transitional
// cancelling state, which the tick refuses to advance; the second commit
// writes the terminal idle state and clears the movement fields.
func CancelMove(c *Context, req CancelRequest) error {
	return cancelActivity(c, req, world.StatusMoving, world.StatusCancelling)
}

// CancelGather aborts a gather order with the same two-phase protocol.
func CancelGather(c *Context, req CancelRequest) error {
	return cancelActivity(c, req, world.StatusGathering, world.StatusCancellingGather)
}

func cancelActivity(c *Context, req CancelRequest, active, transitional world.GroupStatus) error {
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
	if g.Status != active {
		return Errorf(FailedPrecondition, "group is not %s (%s)", active, g.Status)
	}

	now := c.nowMillis()
	groupPath := c.World.GroupPath(pos, g.ID)

	// Phase one: transitional status. A tick that started before this
	// commit either already advanced the group (our second write still
	// lands on the result) or sees the transitional status and skips it.
	g.Status = transitional
	g.CancelRequestTime = now
	phase1 := world.NewUpdate()
	phase1.SetGroup(groupPath, g)
	if err := phase1.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}

	// Phase two: terminal idle with every activity field scrubbed.
	g.Status = world.StatusIdle
	g.CancelRequestTime = 0
	g.MovementPath = nil
	g.PathIndex = 0
	g.NextMoveTime = 0
	g.MoveStarted = 0
	g.MoveSpeed = 0
	g.GatheringBiome = ""
	g.GatheringTicksRemaining = 0
	phase2 := world.NewUpdate()
	phase2.SetGroup(groupPath, g)
	if err := phase2.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
