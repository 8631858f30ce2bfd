package world

import (
	"sort"

	"github.com/lmf-git/gisaima/server/store"
)

// GroupStatus is the closed set of states a group's state machine moves
// through. Transitions are driven by commands and by the tick.
type GroupStatus string

const (
	StatusIdle             GroupStatus = "idle"
	StatusMobilizing       GroupStatus = "mobilizing"
	StatusDemobilising     GroupStatus = "demobilising"
	StatusMoving           GroupStatus = "moving"
	StatusGathering        GroupStatus = "gathering"
	StatusBuilding         GroupStatus = "building"
	StatusCrafting         GroupStatus = "crafting"
	StatusFighting         GroupStatus = "fighting"
	StatusFleeing          GroupStatus = "fleeing"
	StatusCancelling       GroupStatus = "cancelling"
	StatusCancellingGather GroupStatus = "cancellingGather"
)

// MonsterOwner is the owner id of all monster-controlled groups.
const MonsterOwner = "monster"

// Motion capabilities.
const (
	MotionGround = "ground"
	MotionWater  = "water"
	MotionFlying = "flying"
)

// Unit is a single combatant inside a group. Strength defaults to 1 when
// absent. Player units carry the owning player's uid as their id and cannot
// be removed by casualty rolls.
type Unit struct {
	Type     string
	Name     string
	Owner    string
	Strength int64
	Motion   []string
	Capacity int64
}

// IsPlayer reports whether the unit represents a player character.
func (u Unit) IsPlayer() bool { return u.Type == "player" }

// EffectiveStrength is the unit's combat contribution.
func (u Unit) EffectiveStrength() int64 {
	if u.Strength <= 0 {
		return 1
	}
	return u.Strength
}

// Group is a mobile force on a tile.
type Group struct {
	ID     string
	Owner  string
	Name   string
	Race   string
	X, Y   int
	Status GroupStatus
	Units  map[string]Unit
	Items  ItemBag
	Motion []string

	// moving
	MovementPath []TilePos
	PathIndex    int
	NextMoveTime int64
	MoveStarted  int64
	MoveSpeed    float64
	TargetX      int
	TargetY      int

	// gathering
	GatheringBiome          string
	GatheringTicksRemaining int64

	// demobilising
	TargetStructureID  string
	StorageDestination string

	// fighting / fleeing
	InBattle          bool
	BattleID          string
	BattleSide        int64
	BattleRole        string
	FleeTickRequested *int64

	// cancelling
	CancelRequestTime int64
}

// Pos returns the group's tile position.
func (g *Group) Pos() TilePos { return TilePos{X: g.X, Y: g.Y} }

// UnitCount is the number of units in the group.
func (g *Group) UnitCount() int64 { return int64(len(g.Units)) }

// Power sums the strength of every unit, with a minimum of 1 for any
// non-empty group.
func (g *Group) Power() int64 {
	var p int64
	for _, u := range g.Units {
		p += u.EffectiveStrength()
	}
	if p < 1 && len(g.Units) > 0 {
		p = 1
	}
	return p
}

// PlayerUnitID returns the id of the player unit carried by the group, if
// any.
func (g *Group) PlayerUnitID() (string, bool) {
	for id, u := range g.Units {
		if u.IsPlayer() {
			return id, true
		}
	}
	return "", false
}

// UnitIDs returns the unit ids in sorted order for deterministic processing.
func (g *Group) UnitIDs() []string {
	ids := make([]string, 0, len(g.Units))
	for id := range g.Units {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeriveMotion computes the group's motion set from its units: the default
// is ground; any water unit adds water and any flying unit adds flying. A
// group made up purely of water units, purely of flying units, or of both,
// has no ground motion.
func DeriveMotion(units map[string]Unit) []string {
	ground, water, flying := false, false, false
	for _, u := range units {
		hasGround, hasWater := false, false
		for _, m := range u.Motion {
			switch m {
			case MotionWater:
				hasWater = true
			case MotionFlying:
				flying = true
			case MotionGround:
				hasGround = true
			}
		}
		if hasWater {
			water = true
		}
		if hasGround || (!hasWater && len(u.Motion) == 0) {
			ground = true
		}
	}
	var out []string
	if ground || (!water && !flying) {
		out = append(out, MotionGround)
	}
	if water {
		out = append(out, MotionWater)
	}
	if flying {
		out = append(out, MotionFlying)
	}
	return out
}

// DecodeGroup reads a group record from its stored form.
func DecodeGroup(id string, v store.Value) *Group {
	m := Map(v)
	if m == nil {
		return nil
	}
	g := &Group{
		ID:     id,
		Owner:  StrOr(field(m, "owner"), ""),
		Name:   StrOr(field(m, "name"), ""),
		Race:   StrOr(field(m, "race"), ""),
		X:      int(IntOr(field(m, "x"), 0)),
		Y:      int(IntOr(field(m, "y"), 0)),
		Status: GroupStatus(StrOr(field(m, "status"), string(StatusIdle))),
		Items:  DecodeItems(field(m, "items")),
	}
	for _, mv := range List(field(m, "motion")) {
		if s, ok := Str(mv); ok {
			g.Motion = append(g.Motion, s)
		}
	}
	if units := Map(field(m, "units")); units != nil {
		g.Units = make(map[string]Unit, len(units))
		for uid, uv := range units {
			g.Units[uid] = decodeUnit(uv)
		}
	}
	for _, pv := range List(field(m, "movementPath")) {
		step := Map(pv)
		g.MovementPath = append(g.MovementPath, TilePos{
			X: int(IntOr(field(step, "x"), 0)),
			Y: int(IntOr(field(step, "y"), 0)),
		})
	}
	g.PathIndex = int(IntOr(field(m, "pathIndex"), 0))
	g.NextMoveTime = IntOr(field(m, "nextMoveTime"), 0)
	g.MoveStarted = IntOr(field(m, "moveStarted"), 0)
	if f, ok := field(m, "moveSpeed").(float64); ok {
		g.MoveSpeed = f
	} else if n, ok := Int(field(m, "moveSpeed")); ok {
		g.MoveSpeed = float64(n)
	}
	if tx, ok := Int(field(m, "targetX")); ok {
		g.TargetX = int(tx)
	}
	if ty, ok := Int(field(m, "targetY")); ok {
		g.TargetY = int(ty)
	}
	g.GatheringBiome = StrOr(field(m, "gatheringBiome"), "")
	g.GatheringTicksRemaining = IntOr(field(m, "gatheringTicksRemaining"), 0)
	g.TargetStructureID = StrOr(field(m, "targetStructureId"), "")
	g.StorageDestination = StrOr(field(m, "storageDestination"), "")
	g.InBattle = Bool(field(m, "inBattle"))
	g.BattleID = StrOr(field(m, "battleId"), "")
	g.BattleSide = IntOr(field(m, "battleSide"), 0)
	g.BattleRole = StrOr(field(m, "battleRole"), "")
	if n, ok := Int(field(m, "fleeTickRequested")); ok {
		g.FleeTickRequested = &n
	}
	g.CancelRequestTime = IntOr(field(m, "cancelRequestTime"), 0)
	return g
}

func decodeUnit(v store.Value) Unit {
	m := Map(v)
	u := Unit{
		Type:     StrOr(field(m, "type"), ""),
		Name:     StrOr(field(m, "name"), ""),
		Owner:    StrOr(field(m, "owner"), ""),
		Strength: IntOr(field(m, "strength"), 0),
		Capacity: IntOr(field(m, "capacity"), 0),
	}
	for _, mv := range List(field(m, "motion")) {
		if s, ok := Str(mv); ok {
			u.Motion = append(u.Motion, s)
		}
	}
	return u
}

func encodeUnit(u Unit) store.Value {
	m := map[string]store.Value{"type": u.Type}
	if u.Name != "" {
		m["name"] = u.Name
	}
	if u.Owner != "" {
		m["owner"] = u.Owner
	}
	if u.Strength > 0 {
		m["strength"] = u.Strength
	}
	if u.Capacity > 0 {
		m["capacity"] = u.Capacity
	}
	if len(u.Motion) > 0 {
		l := make([]store.Value, len(u.Motion))
		for i, s := range u.Motion {
			l[i] = s
		}
		m["motion"] = l
	}
	return m
}

// Encode renders the group record. Status-specific fields are written only
// when they belong to the current status, which keeps records consistent
// with their state machine by construction.
func (g *Group) Encode() store.Value {
	m := map[string]store.Value{
		"id":        g.ID,
		"owner":     g.Owner,
		"x":         int64(g.X),
		"y":         int64(g.Y),
		"status":    string(g.Status),
		"unitCount": g.UnitCount(),
	}
	if g.Name != "" {
		m["name"] = g.Name
	}
	if g.Race != "" {
		m["race"] = g.Race
	}
	if len(g.Units) > 0 {
		units := make(map[string]store.Value, len(g.Units))
		for id, u := range g.Units {
			units[id] = encodeUnit(u)
		}
		m["units"] = units
	}
	if items := g.Items.Encode(); items != nil {
		m["items"] = items
	}
	if len(g.Motion) > 0 {
		l := make([]store.Value, len(g.Motion))
		for i, s := range g.Motion {
			l[i] = s
		}
		m["motion"] = l
	}

	switch g.Status {
	case StatusMoving, StatusCancelling:
		if len(g.MovementPath) > 0 {
			path := make([]store.Value, len(g.MovementPath))
			for i, p := range g.MovementPath {
				path[i] = map[string]store.Value{"x": int64(p.X), "y": int64(p.Y)}
			}
			m["movementPath"] = path
			m["pathIndex"] = int64(g.PathIndex)
			m["nextMoveTime"] = g.NextMoveTime
			m["moveStarted"] = g.MoveStarted
			m["targetX"] = int64(g.TargetX)
			m["targetY"] = int64(g.TargetY)
			if g.MoveSpeed > 0 {
				m["moveSpeed"] = g.MoveSpeed
			}
		}
	case StatusGathering, StatusCancellingGather:
		if g.GatheringBiome != "" {
			m["gatheringBiome"] = g.GatheringBiome
		}
		m["gatheringTicksRemaining"] = g.GatheringTicksRemaining
	case StatusDemobilising:
		m["targetStructureId"] = g.TargetStructureID
		m["storageDestination"] = g.StorageDestination
	case StatusFighting, StatusFleeing:
		m["inBattle"] = true
		m["battleId"] = g.BattleID
		m["battleSide"] = g.BattleSide
		m["battleRole"] = g.BattleRole
		if g.FleeTickRequested != nil {
			m["fleeTickRequested"] = *g.FleeTickRequested
		}
	}
	if g.Status == StatusCancelling || g.Status == StatusCancellingGather {
		m["cancelRequestTime"] = g.CancelRequestTime
	}
	return m
}
