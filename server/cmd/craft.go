package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/lmf-git/gisaima/server/store"
	"github.com/lmf-git/gisaima/server/world"
)

// structureCraftBonus is the time reduction granted by crafting at a
// structure.
const structureCraftBonus = 0.1

// StartCraftingRequest begins crafting a recipe. Crafting runs on the
// player, not on a group; a player has one craft in flight per world.
type StartCraftingRequest struct {
	RecipeID    string
	X, Y        int
	StructureID string
}

// StartCraftingResult reports the created craft.
type StartCraftingResult struct {
	CraftID     string
	CompletesAt int64
}

// StartCrafting consumes the materials from the player's inventory and
// records the in-flight craft. The tick completes it.
func StartCrafting(c *Context, req StartCraftingRequest) (*StartCraftingResult, error) {
	if err := c.authenticate(); err != nil {
		return nil, err
	}
	recipe, ok := world.RecipeOf(req.RecipeID)
	if !ok {
		return nil, Errorf(InvalidArgument, "unknown recipe %q", req.RecipeID)
	}

	var bonus float64
	if req.StructureID != "" {
		t, cerr := c.loadTile(req.X, req.Y)
		if cerr != nil {
			return nil, cerr
		}
		s := t.Structure
		if s == nil || s.ID != req.StructureID {
			return nil, Errorf(NotFound, "structure %s is not on this tile", req.StructureID)
		}
		if s.Owner != c.UID && !s.Public() {
			return nil, Errorf(PermissionDenied, "structure is not yours")
		}
		bonus = structureCraftBonus
	}

	now := c.nowMillis()
	craftID := uuid.NewString()
	var completesAt int64

	var cmdErr *Error
	err := c.World.Store.Transact(c.World.PlayerRecordPath(c.UID), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		p := world.DecodePlayerRecord(c.UID, cur)
		if p == nil {
			cmdErr = Errorf(FailedPrecondition, "you have not joined this world")
			return nil, store.ErrAborted
		}
		if p.CraftingID != "" {
			cmdErr = Errorf(FailedPrecondition, "you are already crafting")
			return nil, store.ErrAborted
		}
		if !p.Inventory.Covers(recipe.Materials) {
			cmdErr = Errorf(FailedPrecondition, "insufficient materials for %s", req.RecipeID)
			return nil, store.ErrAborted
		}
		p.Inventory.Deduct(recipe.Materials)
		p.CraftingID = craftID
		completesAt = now + world.CraftTime(recipe.BaseTime, p.Crafting.Level, bonus)
		return p.Encode(), nil
	})
	if cmdErr != nil {
		return nil, cmdErr
	}
	if err != nil {
		return nil, internalErr(err)
	}

	craft := &world.Craft{
		ID:          craftID,
		Owner:       c.UID,
		RecipeID:    req.RecipeID,
		StartedAt:   now,
		CompletesAt: completesAt,
		Materials:   recipe.Materials.Clone(),
	}
	u := world.NewUpdate()
	u.Set(c.World.CraftingPath(craftID), craft.Encode())
	c.World.StageChatEvent(u, world.ChatEvent{
		Kind:      world.EventCraft,
		Text:      fmt.Sprintf("Crafting of %s began.", recipe.Output),
		Timestamp: now,
	})
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return nil, internalErr(err)
	}
	return &StartCraftingResult{CraftID: craftID, CompletesAt: completesAt}, nil
}

// CancelCrafting aborts the caller's in-flight craft, refunding half of
// each material to their inventory.
func CancelCrafting(c *Context) error {
	if err := c.authenticate(); err != nil {
		return err
	}
	p, err := c.World.LoadPlayer(c.UID)
	if err != nil {
		return internalErr(err)
	}
	if p == nil || p.CraftingID == "" {
		return Errorf(FailedPrecondition, "you are not crafting")
	}
	craftID := p.CraftingID
	v, err := c.World.Store.Read(c.World.CraftingPath(craftID))
	if err != nil {
		return internalErr(err)
	}
	craft := world.DecodeCraft(craftID, v)
	if craft == nil {
		return Errorf(NotFound, "craft %s not found", craftID)
	}

	// Half of each material, rounded up so a single unit still refunds.
	refund := world.ItemBag{}
	for code, q := range craft.Materials {
		refund[code] = (q + 1) / 2
	}
	var cmdErr *Error
	err = c.World.Store.Transact(c.World.PlayerRecordPath(c.UID), func(cur store.Value) (store.Value, error) {
		cmdErr = nil
		p := world.DecodePlayerRecord(c.UID, cur)
		if p == nil || p.CraftingID != craftID {
			cmdErr = Errorf(FailedPrecondition, "craft already finished")
			return nil, store.ErrAborted
		}
		if p.Inventory == nil {
			p.Inventory = world.ItemBag{}
		}
		p.Inventory.Add(refund)
		p.CraftingID = ""
		return p.Encode(), nil
	})
	if cmdErr != nil {
		return cmdErr
	}
	if err != nil {
		return internalErr(err)
	}

	u := world.NewUpdate()
	u.Delete(c.World.CraftingPath(craftID))
	if err := u.Commit(c.World.Store, c.World.Log); err != nil {
		return internalErr(err)
	}
	return nil
}
