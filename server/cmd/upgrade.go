package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// StartStructureUpgradeRequest begins a structure level upgrade.
type StartStructureUpgradeRequest struct {
	X, Y int
}

// StartBuildingUpgradeRequest begins an upgrade of a building inside a
// structure.
type StartBuildingUpgradeRequest struct {
	X, Y       int
	BuildingID string
}

// UpgradeResult reports the created upgrade record.
type UpgradeResult struct {
	UpgradeID   string
	CompletesAt int64
}

// StartStructureUpgrade stamps the structure as upgrading and records the
// in-flight upgrade. Resources follow the two-stage bank-then-shared
// policy inside one tile transaction.
func StartStructureUpgrade(c *Context, req StartStructureUpgradeRequest) (*UpgradeResult, error) {
	return startUpgrade(c, world.TilePos{X: req.X, Y: req.Y}, "")
}

// StartBuildingUpgrade is the building-level variant.
func StartBuildingUpgrade(c *Context, req StartBuildingUpgradeRequest) (*UpgradeResult, error) {
	if req.BuildingID == "" {
		return nil, Errorf(InvalidArgument, "building id is required")
	}
	return startUpgrade(c, world.TilePos{X: req.X, Y: req.Y}, req.BuildingID)
}

func startUpgrade(c *Context, pos world.TilePos, buildingID string) (*UpgradeResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	info, err := c.World.LoadInfo()
	if err != nil {
		return nil, internalErr(err)
	}
	now := c.nowMillis()
	upgradeID := uuid.NewString()

	var (
		cmdErr *Error
		up     *world.Upgrade
	)
	err = c.World.Store.Transact(c.World.TilePath(pos), func(cur store.Value) (store.Value, error) {
		cmdErr, up = nil, nil
		t := world.DecodeTile(pos, cur)
		s := t.Structure
		if s == nil {
			cmdErr = Errorf(NotFound, "no structure on this tile")
			return nil, store.ErrAborted
		}
		if s.Owner != c.UID && !s.Public() {
			cmdErr = Errorf(PermissionDenied, "structure is not yours")
			return nil, store.ErrAborted
		}
		if s.Status != world.StructureIdle {
			cmdErr = Errorf(FailedPrecondition, "structure is %s", s.Status)
			return nil, store.ErrAborted
		}

		var fromLevel int64
		var building world.Building
		if buildingID == "" {
			if s.UpgradeInProgress {
				cmdErr = Errorf(FailedPrecondition, "structure is already upgrading")
				return nil, store.ErrAborted
			}
			fromLevel = s.Level
		} else {
			var ok bool
			building, ok = s.Buildings[buildingID]
			if !ok {
				cmdErr = Errorf(NotFound, "building %s not found", buildingID)
				return nil, store.ErrAborted
			}
			if building.UpgradeInProgress {
				cmdErr = Errorf(FailedPrecondition, "building is already upgrading")
				return nil, store.ErrAborted
			}
			fromLevel = building.Level
		}
		if fromLevel >= world.MaxStructureLevel {
			cmdErr = Errorf(FailedPrecondition, "already at maximum level")
			return nil, store.ErrAborted
		}

		cost := world.UpgradeCostFor(s.Type, fromLevel)
		deduction, derr := deductTwoStage(s, c.UID, cost)
		if derr != nil {
			cmdErr = derr
			return nil, store.ErrAborted
		}

		ticks := world.UpgradeTicksFor(s.Type, fromLevel)
		completesAt := now + ticks*info.MoveDelay()
		up = &world.Upgrade{
			ID:          upgradeID,
			Owner:       c.UID,
			Pos:         pos,
			StructureID: s.ID,
			BuildingID:  buildingID,
			FromLevel:   fromLevel,
			ToLevel:     fromLevel + 1,
			StartedAt:   now,
			CompletesAt: completesAt,
			Status:      world.UpgradePending,
			Deduction:   deduction,
		}

		if buildingID == "" {
			s.Status = world.StructureUpgrading
			s.UpgradeInProgress = true
			s.UpgradeID = upgradeID
			s.UpgradeCompletesAt = completesAt
		} else {
			building.UpgradeInProgress = true
			building.UpgradeID = upgradeID
			building.UpgradeCompletesAt = completesAt
			s.Buildings[buildingID] = building
		}

		tile := world.Map(store.Clone(cur))
		if tile == nil {
			tile = map[string]store.Value{}
		}
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
	u.Set(c.World.UpgradePath(upgradeID), up.Encode())
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventUpgrade,
		Text:      fmt.Sprintf("An upgrade to level %d started at (%d, %d).", up.ToLevel, pos.X, pos.Y),
		Timestamp: now,
		Location:  &pos,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &UpgradeResult{UpgradeID: upgradeID, CompletesAt: up.CompletesAt}, nil
}

// CancelUpgradeRequest aborts an in-flight upgrade.
type CancelUpgradeRequest struct {
	UpgradeID string
}

// CancelUpgrade refunds the recorded resources to the caller's personal
// bank, clears the upgrade stamp from the target and removes the record.
func CancelUpgrade(c *Context, req CancelUpgradeRequest) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	v, err := c.World.Store.Read(c.World.UpgradePath(req.UpgradeID))
	if err != nil {
		return internalErr(err)
	}
	up := world.DecodeUpgrade(req.UpgradeID, v)
	if up == nil {
		return Errorf(NotFound, "upgrade %s not found", req.UpgradeID)
	}
	if up.Owner != c.UID {
		return Errorf(PermissionDenied, "upgrade %s is not yours", req.UpgradeID)
	}
	if up.Status != world.UpgradePending {
		return Errorf(FailedPrecondition, "upgrade is already %s", up.Status)
	}

	var cmdErr *Error
	err = c.World.Store.Transact(c.World.TilePath(up.Pos), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		t := world.DecodeTile(up.Pos, cur)
		s := t.Structure
		if s == nil || s.ID != up.StructureID {
			cmdErr = Errorf(NotFound, "upgraded structure is gone")
			return nil, store.ErrAborted
		}
		if up.BuildingID == "" {
			s.Status = world.StructureIdle
			s.UpgradeInProgress = false
			s.UpgradeID = ""
			s.UpgradeCompletesAt = 0
		} else if b, ok := s.Buildings[up.BuildingID]; ok {
			b.UpgradeInProgress = false
			b.UpgradeID = ""
			b.UpgradeCompletesAt = 0
			s.Buildings[up.BuildingID] = b
		}
		refundToBank(s, c.UID, up.Deduction.Total())

		tile := world.Map(store.Clone(cur))
		if tile == nil {
			tile = map[string]store.Value{}
		}
		tile["structure"] = s.Encode()
		return tile, nil
	})
	if cmdErr != nil {
		return cmdErr
	}
	if err != nil {
		return internalErr(err)
	}

	u := world.NewUpdate()
	u.Delete(c.World.UpgradePath(req.UpgradeID))
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
