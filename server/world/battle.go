package world

import (
	"sort"

	"github.com/lmf-git/gisaima/server/store"
)

// Battle roles and sides.
const (
	RoleAttacker  = "attacker"
	RoleDefender  = "defender"
	RoleSupporter = "supporter"
)

// BattleStatus values. A battle is deleted when it resolves, so no stored
// battle record carries "resolved" and the battle_end chat event holds no
// status field.
const (
	BattleActive   = "active"
	BattleResolved = "resolved"
)

// Battle target kinds.
const (
	TargetGroup     = "group"
	TargetStructure = "structure"
)

// BattleSide holds the participants of one side, keyed by group id.
type BattleSide struct {
	Groups map[string]bool
}

// IDs returns the participating group ids in sorted order.
func (s BattleSide) IDs() []string {
	ids := make([]string, 0, len(s.Groups))
	for id := range s.Groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BattleEvent is one entry of the battle's event log.
type BattleEvent struct {
	Type      string
	GroupID   string
	Timestamp int64
	Text      string
}

// Battle is the ephemeral contest record attached to a tile.
type Battle struct {
	ID                 string
	Status             string
	TickCount          int64
	StartedAt          int64
	Side1Power         int64
	Side2Power         int64
	DefenderGroupPower int64
	StructurePower     int64
	StructureID        string
	TargetTypes        []string
	Side1              BattleSide
	Side2              BattleSide
	Events             []BattleEvent
}

// Side returns the side record for n (1 or 2).
func (b *Battle) Side(n int64) *BattleSide {
	if n == 2 {
		return &b.Side2
	}
	return &b.Side1
}

// AddEvent appends to the battle event log.
func (b *Battle) AddEvent(kind, groupID string, ts int64, text string) {
	b.Events = append(b.Events, BattleEvent{Type: kind, GroupID: groupID, Timestamp: ts, Text: text})
}

// HasTarget reports whether kind is among the battle's target types.
func (b *Battle) HasTarget(kind string) bool {
	for _, t := range b.TargetTypes {
		if t == kind {
			return true
		}
	}
	return false
}

// DecodeBattle reads a battle record.
func DecodeBattle(id string, v store.Value) *Battle {
	m := Map(v)
	if m == nil {
		return nil
	}
	b := &Battle{
		ID:                 id,
		Status:             StrOr(field(m, "status"), BattleActive),
		TickCount:          IntOr(field(m, "tickCount"), 0),
		StartedAt:          IntOr(field(m, "startedAt"), 0),
		Side1Power:         IntOr(field(m, "side1Power"), 0),
		Side2Power:         IntOr(field(m, "side2Power"), 0),
		DefenderGroupPower: IntOr(field(m, "defenderGroupPower"), 0),
		StructurePower:     IntOr(field(m, "structurePower"), 0),
		StructureID:        StrOr(field(m, "structureId"), ""),
	}
	for _, tv := range List(field(m, "targetTypes")) {
		if s, ok := Str(tv); ok {
			b.TargetTypes = append(b.TargetTypes, s)
		}
	}
	b.Side1 = decodeSide(field(m, "side1"))
	b.Side2 = decodeSide(field(m, "side2"))
	for _, ev := range List(field(m, "events")) {
		em := Map(ev)
		b.Events = append(b.Events, BattleEvent{
			Type:      StrOr(field(em, "type"), ""),
			GroupID:   StrOr(field(em, "groupId"), ""),
			Timestamp: IntOr(field(em, "timestamp"), 0),
			Text:      StrOr(field(em, "text"), ""),
		})
	}
	return b
}

func decodeSide(v store.Value) BattleSide {
	side := BattleSide{Groups: map[string]bool{}}
	if groups := Map(field(Map(v), "groups")); groups != nil {
		for id := range groups {
			side.Groups[id] = true
		}
	}
	return side
}

func encodeSide(s BattleSide) store.Value {
	groups := make(map[string]store.Value, len(s.Groups))
	for id := range s.Groups {
		groups[id] = true
	}
	return map[string]store.Value{"groups": groups}
}

// Encode renders the battle record.
func (b *Battle) Encode() store.Value {
	m := map[string]store.Value{
		"id":                 b.ID,
		"status":             b.Status,
		"tickCount":          b.TickCount,
		"startedAt":          b.StartedAt,
		"side1Power":         b.Side1Power,
		"side2Power":         b.Side2Power,
		"defenderGroupPower": b.DefenderGroupPower,
		"structurePower":     b.StructurePower,
		"side1":              encodeSide(b.Side1),
		"side2":              encodeSide(b.Side2),
	}
	if b.StructureID != "" {
		m["structureId"] = b.StructureID
	}
	if len(b.TargetTypes) > 0 {
		l := make([]store.Value, len(b.TargetTypes))
		for i, t := range b.TargetTypes {
			l[i] = t
		}
		m["targetTypes"] = l
	}
	if len(b.Events) > 0 {
		l := make([]store.Value, len(b.Events))
		for i, e := range b.Events {
			em := map[string]store.Value{"type": e.Type, "timestamp": e.Timestamp}
			if e.GroupID != "" {
				em["groupId"] = e.GroupID
			}
			if e.Text != "" {
				em["text"] = e.Text
			}
			l[i] = em
		}
		m["events"] = l
	}
	return m
}
