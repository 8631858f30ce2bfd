package world

import (
	"sort"

	"github.com/lmf-git/gisaima/server/store"
)

// StructureStatus is the closed state set of a structure.
type StructureStatus string

const (
	StructureIdle      StructureStatus = "idle"
	StructureBuilding  StructureStatus = "building"
	StructureUpgrading StructureStatus = "upgrading"
)

// StructureTypeSpawn is the public spawn structure type: unowned, cannot be
// attacked and cannot change ownership.
const StructureTypeSpawn = "spawn"

// MaxStructureLevel caps structure and building upgrades.
const MaxStructureLevel = 5

// Building is an installation inside a structure.
type Building struct {
	Type               string
	Level              int64
	UpgradeInProgress  bool
	UpgradeID          string
	UpgradeCompletesAt int64
}

// Recruitment is one queued unit production order.
type Recruitment struct {
	ID            string
	Owner         string
	UnitType      string
	Quantity      int64
	TicksRequired int64
	TicksElapsed  int64
	QueuedAt      int64
	Deduction     ResourceDeduction
}

// ResourceDeduction records how a cost was split across storages so a
// cancellation can refund the true amounts.
type ResourceDeduction struct {
	Personal ItemBag
	Shared   ItemBag
}

// Total is the full deducted cost.
func (d ResourceDeduction) Total() ItemBag {
	out := d.Personal.Clone()
	if out == nil {
		out = ItemBag{}
	}
	out.Add(d.Shared)
	return out
}

// Structure is the immobile installation on a tile.
type Structure struct {
	ID     string
	Owner  string
	Type   string
	Name   string
	Race   string
	Level  int64
	Status StructureStatus

	BuildProgress  int64
	BuildTotalTime int64
	Builder        string

	InBattle bool

	UpgradeInProgress  bool
	UpgradeID          string
	UpgradeCompletesAt int64

	Items            ItemBag
	Banks            map[string]ItemBag
	Units            map[string]Unit
	Buildings        map[string]Building
	RecruitmentQueue map[string]Recruitment
	Capacity         int64
}

// DefensivePower is the structure's contribution to the defending side of a
// battle, derived from its type.
func (s *Structure) DefensivePower() int64 {
	switch s.Type {
	case StructureTypeSpawn:
		return 15
	case "fortress":
		return 30
	case "watchtower":
		return 10
	case "stronghold":
		return 25
	default:
		return 5
	}
}

// Public reports whether the structure is usable by any player regardless of
// ownership.
func (s *Structure) Public() bool { return s.Type == StructureTypeSpawn }

// QueueCapacity is the recruitment queue limit.
func (s *Structure) QueueCapacity() int64 {
	if s.Capacity > 0 {
		return s.Capacity
	}
	return DefaultRecruitQueue
}

// Bank returns the personal bank for uid, never nil.
func (s *Structure) Bank(uid string) ItemBag {
	if b, ok := s.Banks[uid]; ok {
		return b
	}
	return ItemBag{}
}

// RecruitmentIDs returns queue ids ordered by queue time then id, which is
// the production order.
func (s *Structure) RecruitmentIDs() []string {
	ids := make([]string, 0, len(s.RecruitmentQueue))
	for id := range s.RecruitmentQueue {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.RecruitmentQueue[ids[i]], s.RecruitmentQueue[ids[j]]
		if a.QueuedAt != b.QueuedAt {
			return a.QueuedAt < b.QueuedAt
		}
		return ids[i] < ids[j]
	})
	return ids
}

// DecodeStructure reads a structure record.
func DecodeStructure(v store.Value) *Structure {
	m := Map(v)
	if m == nil {
		return nil
	}
	s := &Structure{
		ID:                 StrOr(field(m, "id"), ""),
		Owner:              StrOr(field(m, "owner"), ""),
		Type:               StrOr(field(m, "type"), ""),
		Name:               StrOr(field(m, "name"), ""),
		Race:               StrOr(field(m, "race"), ""),
		Level:              IntOr(field(m, "level"), 1),
		Status:             StructureStatus(StrOr(field(m, "status"), string(StructureIdle))),
		BuildProgress:      IntOr(field(m, "buildProgress"), 0),
		BuildTotalTime:     IntOr(field(m, "buildTotalTime"), 0),
		Builder:            StrOr(field(m, "builder"), ""),
		InBattle:           Bool(field(m, "inBattle")),
		UpgradeInProgress:  Bool(field(m, "upgradeInProgress")),
		UpgradeID:          StrOr(field(m, "upgradeId"), ""),
		UpgradeCompletesAt: IntOr(field(m, "upgradeCompletesAt"), 0),
		Items:              DecodeItems(field(m, "items")),
		Capacity:           IntOr(field(m, "capacity"), 0),
	}
	if banks := Map(field(m, "banks")); banks != nil {
		s.Banks = make(map[string]ItemBag, len(banks))
		for uid, bv := range banks {
			s.Banks[uid] = DecodeItems(bv)
		}
	}
	if units := Map(field(m, "units")); units != nil {
		s.Units = make(map[string]Unit, len(units))
		for uid, uv := range units {
			s.Units[uid] = decodeUnit(uv)
		}
	}
	if buildings := Map(field(m, "buildings")); buildings != nil {
		s.Buildings = make(map[string]Building, len(buildings))
		for id, bv := range buildings {
			bm := Map(bv)
			s.Buildings[id] = Building{
				Type:               StrOr(field(bm, "type"), ""),
				Level:              IntOr(field(bm, "level"), 1),
				UpgradeInProgress:  Bool(field(bm, "upgradeInProgress")),
				UpgradeID:          StrOr(field(bm, "upgradeId"), ""),
				UpgradeCompletesAt: IntOr(field(bm, "upgradeCompletesAt"), 0),
			}
		}
	}
	if queue := Map(field(m, "recruitmentQueue")); queue != nil {
		s.RecruitmentQueue = make(map[string]Recruitment, len(queue))
		for id, rv := range queue {
			s.RecruitmentQueue[id] = decodeRecruitment(id, rv)
		}
	}
	return s
}

func decodeRecruitment(id string, v store.Value) Recruitment {
	m := Map(v)
	r := Recruitment{
		ID:            id,
		Owner:         StrOr(field(m, "owner"), ""),
		UnitType:      StrOr(field(m, "unitType"), ""),
		Quantity:      IntOr(field(m, "quantity"), 0),
		TicksRequired: IntOr(field(m, "ticksRequired"), 0),
		TicksElapsed:  IntOr(field(m, "ticksElapsed"), 0),
		QueuedAt:      IntOr(field(m, "queuedAt"), 0),
	}
	if d := Map(field(m, "resourceDeduction")); d != nil {
		r.Deduction = ResourceDeduction{
			Personal: DecodeItems(field(d, "personal")),
			Shared:   DecodeItems(field(d, "shared")),
		}
	}
	return r
}

func encodeRecruitment(r Recruitment) store.Value {
	m := map[string]store.Value{
		"owner":         r.Owner,
		"unitType":      r.UnitType,
		"quantity":      r.Quantity,
		"ticksRequired": r.TicksRequired,
		"queuedAt":      r.QueuedAt,
	}
	if r.TicksElapsed > 0 {
		m["ticksElapsed"] = r.TicksElapsed
	}
	if len(r.Deduction.Personal) > 0 || len(r.Deduction.Shared) > 0 {
		d := map[string]store.Value{}
		if v := r.Deduction.Personal.Encode(); v != nil {
			d["personal"] = v
		}
		if v := r.Deduction.Shared.Encode(); v != nil {
			d["shared"] = v
		}
		m["resourceDeduction"] = d
	}
	return m
}

// Encode renders the structure record.
func (s *Structure) Encode() store.Value {
	m := map[string]store.Value{
		"id":     s.ID,
		"type":   s.Type,
		"level":  s.Level,
		"status": string(s.Status),
	}
	if s.Owner != "" {
		m["owner"] = s.Owner
	}
	if s.Name != "" {
		m["name"] = s.Name
	}
	if s.Race != "" {
		m["race"] = s.Race
	}
	if s.Status == StructureBuilding {
		m["buildProgress"] = s.BuildProgress
		m["buildTotalTime"] = s.BuildTotalTime
		m["builder"] = s.Builder
	}
	if s.InBattle {
		m["inBattle"] = true
	}
	if s.UpgradeInProgress {
		m["upgradeInProgress"] = true
		m["upgradeId"] = s.UpgradeID
		m["upgradeCompletesAt"] = s.UpgradeCompletesAt
	}
	if items := s.Items.Encode(); items != nil {
		m["items"] = items
	}
	if len(s.Banks) > 0 {
		banks := make(map[string]store.Value, len(s.Banks))
		for uid, bag := range s.Banks {
			if v := bag.Encode(); v != nil {
				banks[uid] = v
			}
		}
		if len(banks) > 0 {
			m["banks"] = banks
		}
	}
	if len(s.Units) > 0 {
		units := make(map[string]store.Value, len(s.Units))
		for id, u := range s.Units {
			units[id] = encodeUnit(u)
		}
		m["units"] = units
	}
	if len(s.Buildings) > 0 {
		buildings := make(map[string]store.Value, len(s.Buildings))
		for id, b := range s.Buildings {
			bm := map[string]store.Value{"type": b.Type, "level": b.Level}
			if b.UpgradeInProgress {
				bm["upgradeInProgress"] = true
				bm["upgradeId"] = b.UpgradeID
				bm["upgradeCompletesAt"] = b.UpgradeCompletesAt
			}
			buildings[id] = bm
		}
		m["buildings"] = buildings
	}
	if len(s.RecruitmentQueue) > 0 {
		queue := make(map[string]store.Value, len(s.RecruitmentQueue))
		for id, r := range s.RecruitmentQueue {
			queue[id] = encodeRecruitment(r)
		}
		m["recruitmentQueue"] = queue
	}
	if s.Capacity > 0 {
		m["capacity"] = s.Capacity
	}
	return m
}
