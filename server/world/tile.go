package world

import (
	"sort"

	"github.com/lmf-git/gisaima/server/store"
)

// PlayerPresence is a player entity standing on a tile outside any group.
type PlayerPresence struct {
	UID         string
	DisplayName string
	Race        string
	Alive       bool
}

// Tile is the decoded contents of one grid cell. Tiles are created lazily on
// first write and may be empty.
type Tile struct {
	Pos       TilePos
	Biome     string
	Groups    map[string]*Group
	Players   map[string]PlayerPresence
	Structure *Structure
	Battles   map[string]*Battle
	Items     ItemBag
}

// GroupIDs returns the tile's group ids in sorted order.
func (t *Tile) GroupIDs() []string {
	ids := make([]string, 0, len(t.Groups))
	for id := range t.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BattleIDs returns the tile's battle ids in sorted order.
func (t *Tile) BattleIDs() []string {
	ids := make([]string, 0, len(t.Battles))
	for id := range t.Battles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DecodeTile reads a tile subtree. A nil value yields an empty tile at pos.
func DecodeTile(pos TilePos, v store.Value) *Tile {
	t := &Tile{
		Pos:     pos,
		Groups:  map[string]*Group{},
		Players: map[string]PlayerPresence{},
		Battles: map[string]*Battle{},
	}
	m := Map(v)
	if m == nil {
		return t
	}
	t.Biome = StrOr(field(m, "biome"), "")
	if groups := Map(field(m, "groups")); groups != nil {
		for id, gv := range groups {
			if g := DecodeGroup(id, gv); g != nil {
				t.Groups[id] = g
			}
		}
	}
	if players := Map(field(m, "players")); players != nil {
		for uid, pv := range players {
			pm := Map(pv)
			t.Players[uid] = PlayerPresence{
				UID:         uid,
				DisplayName: StrOr(field(pm, "displayName"), ""),
				Race:        StrOr(field(pm, "race"), ""),
				Alive:       Bool(field(pm, "alive")),
			}
		}
	}
	t.Structure = DecodeStructure(field(m, "structure"))
	if battles := Map(field(m, "battles")); battles != nil {
		for id, bv := range battles {
			if b := DecodeBattle(id, bv); b != nil {
				t.Battles[id] = b
			}
		}
	}
	t.Items = DecodeItems(field(m, "items"))
	return t
}

// EncodePlayerPresence renders a tile player entity.
func EncodePlayerPresence(p PlayerPresence) store.Value {
	m := map[string]store.Value{
		"uid":   p.UID,
		"alive": p.Alive,
	}
	if p.DisplayName != "" {
		m["displayName"] = p.DisplayName
	}
	if p.Race != "" {
		m["race"] = p.Race
	}
	return m
}
