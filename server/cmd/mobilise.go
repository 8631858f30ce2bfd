package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// MobiliseRequest selects units on a tile into a new group.
type MobiliseRequest struct {
	X, Y          int
	UnitIDs       []string
	IncludePlayer bool
	Name          string
	Race          string
}

// MobiliseResult reports the created group.
type MobiliseResult struct {
	GroupID string
}

// Mobilise forms a new group from units the caller owns on the tile. The
// group is created in the mobilizing state; the next tick flips it to idle.
func Mobilise(c *Context, req MobiliseRequest) (*MobiliseResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	if len(req.UnitIDs) == 0 && !req.IncludePlayer {
		return nil, Errorf(InvalidArgument, "no units selected")
	}
	if req.Name == "" {
		return nil, Errorf(InvalidArgument, "group name is required")
	}
	pos := world.TilePos{X: req.X, Y: req.Y}
	t, cerr := c.loadTile(req.X, req.Y)
	if cerr != nil {
		return nil, cerr
	}

	if !playerOnTile(c.UID, t) {
		return nil, Errorf(FailedPrecondition, "you are not on this tile")
	}

	// Resolve every selected unit to its source: a group the caller owns on
	// the tile or the structure garrison.
	type source struct {
		group   *world.Group // nil when garrisoned
		unit    world.Unit
		fromGar bool
	}
	sources := make(map[string]source, len(req.UnitIDs))
	for _, unitID := range req.UnitIDs {
		if _, dup := sources[unitID]; dup {
			return nil, Errorf(InvalidArgument, "unit %s selected twice", unitID)
		}
		found := false
		for _, g := range t.Groups {
			if unit, ok := g.Units[unitID]; ok {
				if g.Owner != c.UID {
					return nil, Errorf(PermissionDenied, "unit %s is not yours", unitID)
				}
				if g.Status != world.StatusIdle {
					return nil, Errorf(FailedPrecondition, "group %s is busy", g.ID)
				}
				if unit.IsPlayer() {
					return nil, Errorf(InvalidArgument, "player units cannot be selected directly")
				}
				sources[unitID] = source{group: g, unit: unit}
				found = true
				break
			}
		}
		if !found && t.Structure != nil {
			if unit, ok := t.Structure.Units[unitID]; ok {
				if unit.Owner != c.UID {
					return nil, Errorf(PermissionDenied, "unit %s is not yours", unitID)
				}
				sources[unitID] = source{unit: unit, fromGar: true}
				found = true
			}
		}
		if !found {
			return nil, Errorf(NotFound, "unit %s is not on this tile", unitID)
		}
	}

	// Boat capacity: water carriers must be able to hold every non-carrier
	// passenger.
	var capacity, passengers int64
	hasBoat := false
	for _, src := range sources {
		if src.unit.Capacity > 0 && hasMotion(src.unit.Motion, world.MotionWater) {
			hasBoat = true
			capacity += src.unit.Capacity
		} else {
			passengers++
		}
	}
	if req.IncludePlayer {
		passengers++
	}
	if hasBoat && passengers > capacity {
		return nil, Errorf(FailedPrecondition,
			"boats can carry %d passengers, %d selected", capacity, passengers)
	}

	u := world.NewUpdate()
	units := map[string]world.Unit{}
	touchedGroups := map[string]*world.Group{}
	garrisonChanged := false
	for unitID, src := range sources {
		units[unitID] = src.unit
		if src.fromGar {
			delete(t.Structure.Units, unitID)
			garrisonChanged = true
			continue
		}
		delete(src.group.Units, unitID)
		touchedGroups[src.group.ID] = src.group
	}
	for id, g := range touchedGroups {
		path := c.World.GroupPath(pos, id)
		if len(g.Units) == 0 {
			u.DeleteGroup(path, world.StatusIdle)
			continue
		}
		g.Motion = world.DeriveMotion(g.Units)
		u.SetGroup(path, g)
	}
	if garrisonChanged {
		u.Set(c.World.StructurePath(pos), t.Structure.Encode())
	}

	now := c.nowMillis()
	if req.IncludePlayer {
		presence, ok := t.Players[c.UID]
		if !ok {
			return nil, Errorf(FailedPrecondition, "you have no presence on this tile to include")
		}
		units[c.UID] = world.Unit{Type: "player", Name: presence.DisplayName, Owner: c.UID}
		u.Delete(c.World.PlayerPresencePath(pos, c.UID))
	}

	groupID := uuid.NewString()
	g := &world.Group{
		ID:     groupID,
		Owner:  c.UID,
		Name:   req.Name,
		Race:   req.Race,
		X:      req.X,
		Y:      req.Y,
		Status: world.StatusMobilizing,
		Units:  units,
		Motion: world.DeriveMotion(units),
	}
	u.SetGroup(c.World.GroupPath(pos, groupID), g)
	if req.IncludePlayer {
		u.Set(store.Join(c.World.PlayerRecordPath(c.UID), "inGroup"), groupID)
	}

	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventMobilise,
		Text:      fmt.Sprintf("%s mobilised at (%d, %d).", req.Name, req.X, req.Y),
		Timestamp: now,
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &MobiliseResult{GroupID: groupID}, nil
}

// playerOnTile reports whether the caller stands on the tile directly or
// inside one of its groups.
func playerOnTile(uid string, t *world.Tile) bool {
	if _, ok := t.Players[uid]; ok {
		return true
	}
	for _, g := range t.Groups {
		if _, ok := g.Units[uid]; ok {
			return true
		}
	}
	return false
}

func hasMotion(motion []string, kind string) bool {
	for _, m := range motion {
		if m == kind {
			return true
		}
	}
	return false
}
