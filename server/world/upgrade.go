package world

import (
	"github.com/lmf-git/gisaima/server/store"
)

// Upgrade statuses.
const (
	UpgradePending  = "pending"
	UpgradeComplete = "complete"
)

// Upgrade is an in-flight structure or building upgrade, stored under
// worlds/{id}/upgrades. BuildingID is empty for structure-level upgrades.
type Upgrade struct {
	ID          string
	Owner       string
	Pos         TilePos
	StructureID string
	BuildingID  string
	FromLevel   int64
	ToLevel     int64
	StartedAt   int64
	CompletesAt int64
	Status      string
	Deduction   ResourceDeduction
}

// DecodeUpgrade reads an upgrade record.
func DecodeUpgrade(id string, v store.Value) *Upgrade {
	m := Map(v)
	if m == nil {
		return nil
	}
	up := &Upgrade{
		ID:          id,
		Owner:       StrOr(field(m, "owner"), ""),
		StructureID: StrOr(field(m, "structureId"), ""),
		BuildingID:  StrOr(field(m, "buildingId"), ""),
		FromLevel:   IntOr(field(m, "fromLevel"), 0),
		ToLevel:     IntOr(field(m, "toLevel"), 0),
		StartedAt:   IntOr(field(m, "startedAt"), 0),
		CompletesAt: IntOr(field(m, "completesAt"), 0),
		Status:      StrOr(field(m, "status"), UpgradePending),
	}
	if pos := Map(field(m, "position")); pos != nil {
		up.Pos = TilePos{X: int(IntOr(field(pos, "x"), 0)), Y: int(IntOr(field(pos, "y"), 0))}
	}
	if d := Map(field(m, "resources")); d != nil {
		up.Deduction = ResourceDeduction{
			Personal: DecodeItems(field(d, "personal")),
			Shared:   DecodeItems(field(d, "shared")),
		}
	}
	return up
}

// Encode renders the upgrade record.
func (up *Upgrade) Encode() store.Value {
	m := map[string]store.Value{
		"owner":       up.Owner,
		"structureId": up.StructureID,
		"fromLevel":   up.FromLevel,
		"toLevel":     up.ToLevel,
		"startedAt":   up.StartedAt,
		"completesAt": up.CompletesAt,
		"status":      up.Status,
		"position": map[string]store.Value{
			"x": int64(up.Pos.X),
			"y": int64(up.Pos.Y),
		},
	}
	if up.BuildingID != "" {
		m["buildingId"] = up.BuildingID
	}
	if len(up.Deduction.Personal) > 0 || len(up.Deduction.Shared) > 0 {
		d := map[string]store.Value{}
		if v := up.Deduction.Personal.Encode(); v != nil {
			d["personal"] = v
		}
		if v := up.Deduction.Shared.Encode(); v != nil {
			d["shared"] = v
		}
		m["resources"] = d
	}
	return m
}

// Craft is an in-flight crafting order, stored under worlds/{id}/crafting.
// Crafting runs on the player, not on a group; a player has at most one in
// flight per world.
type Craft struct {
	ID          string
	Owner       string
	RecipeID    string
	StartedAt   int64
	CompletesAt int64
	Materials   ItemBag
}

// DecodeCraft reads a craft record.
func DecodeCraft(id string, v store.Value) *Craft {
	m := Map(v)
	if m == nil {
		return nil
	}
	return &Craft{
		ID:          id,
		Owner:       StrOr(field(m, "owner"), ""),
		RecipeID:    StrOr(field(m, "recipeId"), ""),
		StartedAt:   IntOr(field(m, "startedAt"), 0),
		CompletesAt: IntOr(field(m, "completesAt"), 0),
		Materials:   DecodeItems(field(m, "materials")),
	}
}

// Encode renders the craft record.
func (c *Craft) Encode() store.Value {
	m := map[string]store.Value{
		"owner":       c.Owner,
		"recipeId":    c.RecipeID,
		"startedAt":   c.StartedAt,
		"completesAt": c.CompletesAt,
	}
	if v := c.Materials.Encode(); v != nil {
		m["materials"] = v
	}
	return m
}

// CraftTime computes the effective crafting duration: the recipe base time
// reduced by skill level (5% per level past the first, capped at 50%) and by
// any structure bonus, never below 10% of base.
func CraftTime(base int64, level int64, structureBonus float64) int64 {
	reduction := 0.05 * float64(level-1)
	if level < 1 {
		reduction = 0
	}
	if reduction > 0.5 {
		reduction = 0.5
	}
	factor := 1 - reduction - structureBonus
	if factor < 0.1 {
		factor = 0.1
	}
	return int64(float64(base) * factor)
}
