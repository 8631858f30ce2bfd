package world

import (
	"github.com/lmf-git/gisaima/server/store"
)

// CraftingSkill is the per-player crafting progression.
type CraftingSkill struct {
	XP    int64
	Level int64
}

// PlayerRecord is the per-player, per-world state stored under
// players/{uid}/worlds/{worldId}.
type PlayerRecord struct {
	UID          string
	Race         string
	DisplayName  string
	Alive        bool
	InGroup      string
	LastLocation *TilePos
	Achievements map[string]bool
	CraftingID   string
	Crafting     CraftingSkill
	Inventory    ItemBag
}

// DecodePlayerRecord reads a player world record. A nil value returns nil.
func DecodePlayerRecord(uid string, v store.Value) *PlayerRecord {
	m := Map(v)
	if m == nil {
		return nil
	}
	p := &PlayerRecord{
		UID:         uid,
		Race:        StrOr(field(m, "race"), ""),
		DisplayName: StrOr(field(m, "displayName"), ""),
		Alive:       Bool(field(m, "alive")),
		InGroup:     StrOr(field(m, "inGroup"), ""),
		Inventory:   DecodeItems(field(m, "inventory")),
	}
	if loc := Map(field(m, "lastLocation")); loc != nil {
		p.LastLocation = &TilePos{
			X: int(IntOr(field(loc, "x"), 0)),
			Y: int(IntOr(field(loc, "y"), 0)),
		}
	}
	if ach := Map(field(m, "achievements")); ach != nil {
		p.Achievements = make(map[string]bool, len(ach))
		for k, av := range ach {
			p.Achievements[k] = Bool(av)
		}
	}
	if crafting := Map(field(m, "crafting")); crafting != nil {
		p.CraftingID = StrOr(field(crafting, "current"), "")
	}
	if skills := Map(field(m, "skills")); skills != nil {
		if c := Map(field(skills, "crafting")); c != nil {
			p.Crafting = CraftingSkill{
				XP:    IntOr(field(c, "xp"), 0),
				Level: IntOr(field(c, "level"), 0),
			}
		}
	}
	return p
}

// Encode renders the player record.
func (p *PlayerRecord) Encode() store.Value {
	m := map[string]store.Value{
		"race":  p.Race,
		"alive": p.Alive,
	}
	if p.DisplayName != "" {
		m["displayName"] = p.DisplayName
	}
	if p.InGroup != "" {
		m["inGroup"] = p.InGroup
	}
	if p.LastLocation != nil {
		m["lastLocation"] = map[string]store.Value{
			"x": int64(p.LastLocation.X),
			"y": int64(p.LastLocation.Y),
		}
	}
	if len(p.Achievements) > 0 {
		ach := make(map[string]store.Value, len(p.Achievements))
		for k, b := range p.Achievements {
			ach[k] = b
		}
		m["achievements"] = ach
	}
	if p.CraftingID != "" {
		m["crafting"] = map[string]store.Value{"current": p.CraftingID}
	}
	if p.Crafting != (CraftingSkill{}) {
		m["skills"] = map[string]store.Value{
			"crafting": map[string]store.Value{
				"xp":    p.Crafting.XP,
				"level": p.Crafting.Level,
			},
		}
	}
	if inv := p.Inventory.Encode(); inv != nil {
		m["inventory"] = inv
	}
	return m
}
