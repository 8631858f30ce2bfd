package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// BuildRequest founds a structure on the group's tile.
type BuildRequest struct {
	GroupID       string
	X, Y          int
	StructureType string
	StructureName string
}

// BuildResult reports the created structure.
type BuildResult struct {
	StructureID string
}

// Build creates a structure in the building state and puts the group to
// work on it. The structure creation, the resource deduction from the
// group's items and the group's status change are one transaction: the
// builder's resources and the new structure can never disagree.
func Build(c *Context, req BuildRequest) (*BuildResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if req.StructureName == "" {
		return nil, Errorf(InvalidArgument, "structure name is required")
	}
	def, ok := world.StructureDefOf(req.StructureType)
	if !ok {
		return nil, Errorf(InvalidArgument, "unknown structure type %q", req.StructureType)
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	structureID := uuid.NewString()

	var cmdErr *Error
	err := c.World.Store.Transact(c.World.TilePath(pos), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		t := world.DecodeTile(pos, cur)
		g, ok := t.Groups[req.GroupID]
		if !ok {
			cmdErr = Errorf(NotFound, "group %s is not on this tile", req.GroupID)
			return nil, store.ErrAborted
		}
		if g.Owner != c.UID {
			cmdErr = Errorf(PermissionDenied, "group %s is not yours", req.GroupID)
			return nil, store.ErrAborted
		}
		if g.Status != world.StatusIdle {
			cmdErr = Errorf(FailedPrecondition, "group is busy (%s)", g.Status)
			return nil, store.ErrAborted
		}
		if t.Structure != nil {
			cmdErr = Errorf(FailedPrecondition, "tile already has a structure")
			return nil, store.ErrAborted
		}
		if !g.Items.Covers(def.Cost) {
			cmdErr = Errorf(FailedPrecondition, "insufficient resources for a %s", req.StructureType)
			return nil, store.ErrAborted
		}

		g.Items.Deduct(def.Cost)
		g.Status = world.StatusBuilding

		s := &world.Structure{
			ID:             structureID,
			Owner:          c.UID,
			Type:           req.StructureType,
			Name:           req.StructureName,
			Race:           g.Race,
			Level:          1,
			Status:         world.StructureBuilding,
			BuildProgress:  0,
			BuildTotalTime: def.BuildTicks,
			Builder:        g.ID,
			Capacity:       def.Capacity,
		}

		tile := world.Map(store.Clone(cur))
		if tile == nil {
			tile = map[string]store.Value{}
		}
		groups := world.Map(tile["groups"])
		if groups == nil {
			groups = map[string]store.Value{}
			tile["groups"] = groups
		}
		groups[g.ID] = g.Encode()
		tile["structure"] = s.Encode()
		return tile, nil
	})
	if cmdErr != nil {
		return nil, cmdErr
	}
	if err != nil {
		return nil, internalErr(err)
	}

	u := world.NewUpdate()
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventBuild,
		Text:      fmt.Sprintf("Construction of %s began at (%d, %d).", req.StructureName, req.X, req.Y),
		Timestamp: c.nowMillis(),
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &BuildResult{StructureID: structureID}, nil
}
