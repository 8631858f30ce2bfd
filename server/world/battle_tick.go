package world

import (
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/lmf-git/gisaima/server/internal/sliceutil"
	"github.com/lmf-git/gisaima/server/store"
)

// FleeCasualtyRate is the share of a fleeing group's non-player units lost
// on exit, floored.
const FleeCasualtyRate = 0.2

// battleDamageDivisor converts opposing power into unit casualties per
// round: one unit lost per this much opposing power, minimum one.
const battleDamageDivisor = 10

// resolveBattle advances one battle by a single round, staging every effect
// into u. Group ids it touched are added to processed so later tick phases
// do not advance them again.
func (w *World) resolveBattle(u *Update, t *Tile, b *Battle, now int64, rng *rand.Rand, processed map[string]bool) {
	b.TickCount++

	// Participants are resolved by id against the tile, which keeps the
	// battle record free of group data and invariant 3 checkable.
	side1 := w.battleGroups(t, b, 1)
	side2 := w.battleGroups(t, b, 2)
	for _, g := range side1 {
		processed[g.ID] = true
	}
	for _, g := range side2 {
		processed[g.ID] = true
	}

	// Pending flee requests exit before any damage is dealt this round.
	side1 = w.processFlees(u, t, b, side1, 1, now, rng)
	side2 = w.processFlees(u, t, b, side2, 2, now, rng)

	var structurePower int64
	if b.HasTarget(TargetStructure) && t.Structure != nil {
		structurePower = t.Structure.DefensivePower()
	}
	b.StructurePower = structurePower
	b.DefenderGroupPower = groupPower(side2)
	b.Side1Power = groupPower(side1)
	b.Side2Power = b.DefenderGroupPower + structurePower

	// Only the currently weaker side takes casualties this round; ties fall
	// against the attacker.
	if b.Side1Power <= b.Side2Power {
		w.allocateCasualties(side1, b.Side2Power, rng)
	} else {
		w.allocateCasualties(side2, b.Side1Power, rng)
	}

	side1Remaining := groupPower(side1)
	side2Remaining := groupPower(side2)

	if side1Remaining > 0 && side2Remaining > 0 {
		// Battle continues; persist the advanced record and survivors.
		b.Side1Power = side1Remaining
		b.Side2Power = side2Remaining + structurePower
		for _, g := range append(side1, side2...) {
			u.SetGroup(w.GroupPath(t.Pos, g.ID), g)
		}
		u.Set(w.BattlePath(t.Pos, b.ID), b.Encode())
		return
	}

	loserSide, winnerSide := int64(2), int64(1)
	losers, winners := side2, side1
	if side1Remaining <= 0 {
		loserSide, winnerSide = 1, 2
		losers, winners = side1, side2
	}

	for _, g := range winners {
		if len(g.Units) == 0 {
			// A side can win with its last units already gone when both
			// sides hit zero in the same round.
			w.destroyGroup(u, t.Pos, g, now)
			continue
		}
		g.Status = StatusIdle
		g.InBattle = false
		g.BattleID = ""
		g.BattleSide = 0
		g.BattleRole = ""
		g.FleeTickRequested = nil
		u.SetGroup(w.GroupPath(t.Pos, g.ID), g)
	}
	for _, g := range losers {
		w.destroyGroup(u, t.Pos, g, now)
	}

	if t.Structure != nil && b.HasTarget(TargetStructure) {
		// Mutated in place so later tick phases observe the outcome.
		s := t.Structure
		s.InBattle = false
		if loserSide == 2 && !s.Public() {
			if owner := dominantOwner(winners); owner != "" {
				s.Owner = owner
			}
		}
		u.Set(w.StructurePath(t.Pos), s.Encode())
	}

	u.Delete(w.BattlePath(t.Pos, b.ID))
	w.StageChatEvent(u, ChatEvent{
		Kind:      EventBattleEnd,
		Text:      fmt.Sprintf("The battle at (%d, %d) has ended. Side %d is victorious.", t.Pos.X, t.Pos.Y, winnerSide),
		Timestamp: now,
		Location:  &t.Pos,
	})
}

// battleGroups resolves one side's group ids against the tile, dropping ids
// whose groups are gone or no longer marked as fighting on that side.
func (w *World) battleGroups(t *Tile, b *Battle, side int64) []*Group {
	var groups []*Group
	for _, id := range b.Side(side).IDs() {
		g, ok := t.Groups[id]
		if !ok {
			delete(b.Side(side).Groups, id)
			continue
		}
		if g.BattleSide != side || g.BattleID != b.ID {
			delete(b.Side(side).Groups, id)
			continue
		}
		groups = append(groups, g)
	}
	return groups
}

// processFlees removes groups with a pending flee request from the side,
// applying the flee casualty rate to their non-player units.
func (w *World) processFlees(u *Update, t *Tile, b *Battle, groups []*Group, side int64, now int64, rng *rand.Rand) []*Group {
	return sliceutil.Filter(groups, func(g *Group) bool {
		if g.Status != StatusFleeing || g.FleeTickRequested == nil {
			return true
		}
		b.AddEvent(EventFleeAttempt, g.ID, now, fmt.Sprintf("%s attempts to flee", g.Name))

		nonPlayer := sliceutil.Filter(g.UnitIDs(), func(id string) bool {
			return !g.Units[id].IsPlayer()
		})
		casualties := int(float64(len(nonPlayer)) * FleeCasualtyRate)
		rng.Shuffle(len(nonPlayer), func(i, j int) {
			nonPlayer[i], nonPlayer[j] = nonPlayer[j], nonPlayer[i]
		})
		for _, id := range nonPlayer[:casualties] {
			delete(g.Units, id)
		}

		delete(b.Side(side).Groups, g.ID)
		g.Status = StatusIdle
		g.InBattle = false
		g.BattleID = ""
		g.BattleSide = 0
		g.BattleRole = ""
		g.FleeTickRequested = nil
		u.SetGroup(w.GroupPath(t.Pos, g.ID), g)

		b.AddEvent(EventFlee, g.ID, now, fmt.Sprintf("%s fled the battle", g.Name))
		w.StageChatEvent(u, ChatEvent{
			Kind:      EventFlee,
			Text:      fmt.Sprintf("%s fled the battle at (%d, %d), losing %d units.", g.Name, t.Pos.X, t.Pos.Y, casualties),
			Timestamp: now,
			Location:  &t.Pos,
		})
		return false
	})
}

// allocateCasualties removes units from the side's groups, one per
// battleDamageDivisor of opposing power. Player units are never removed by
// damage; they survive to be resettled when their group is destroyed.
func (w *World) allocateCasualties(groups []*Group, opposingPower int64, rng *rand.Rand) {
	if len(groups) == 0 || opposingPower <= 0 {
		return
	}
	budget := opposingPower / battleDamageDivisor
	if budget < 1 {
		budget = 1
	}

	// Pool every removable unit across the side, then delete a random
	// selection so losses spread across groups.
	type pooled struct {
		g  *Group
		id string
	}
	var pool []pooled
	for _, g := range groups {
		for _, id := range g.UnitIDs() {
			if !g.Units[id].IsPlayer() {
				pool = append(pool, pooled{g: g, id: id})
			}
		}
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for _, p := range pool {
		if budget <= 0 {
			break
		}
		budget--
		delete(p.g.Units, p.id)
	}
}

// destroyGroup deletes a wiped group. A player unit inside it is resettled
// on the tile as a player entity awaiting respawn.
func (w *World) destroyGroup(u *Update, pos TilePos, g *Group, now int64) {
	u.DeleteGroup(w.GroupPath(pos, g.ID), StatusFighting)
	for id, unit := range g.Units {
		if !unit.IsPlayer() {
			continue
		}
		u.Set(w.PlayerPresencePath(pos, id), EncodePlayerPresence(PlayerPresence{
			UID:         id,
			DisplayName: unit.Name,
			Race:        g.Race,
			Alive:       false,
		}))
		u.Set(store.Join(w.PlayerRecordPath(id), "alive"), false)
		u.Set(store.Join(w.PlayerRecordPath(id), "inGroup"), nil)
		u.Set(store.Join(w.PlayerRecordPath(id), "lastLocation"), map[string]store.Value{
			"x": int64(pos.X), "y": int64(pos.Y),
		})
	}
}

// groupPower sums the combat power of one side. Player units contribute
// nothing: they cannot be removed by damage, so counting them would keep a
// beaten side alive forever. A group that still has any non-player unit is
// worth at least 1.
func groupPower(groups []*Group) int64 {
	var p int64
	for _, g := range groups {
		var gp int64
		for _, u := range g.Units {
			if !u.IsPlayer() {
				gp += u.EffectiveStrength()
			}
		}
		if gp == 0 && hasNonPlayerUnits(g) {
			gp = 1
		}
		p += gp
	}
	return p
}

func hasNonPlayerUnits(g *Group) bool {
	for _, u := range g.Units {
		if !u.IsPlayer() {
			return true
		}
	}
	return false
}

// dominantOwner returns the owner with the highest summed power among the
// groups, for structure ownership transfer. Monster ownership is skipped.
func dominantOwner(groups []*Group) string {
	powers := map[string]int64{}
	for _, g := range groups {
		if g.Owner != "" && g.Owner != MonsterOwner {
			powers[g.Owner] += g.Power()
		}
	}
	owners := make([]string, 0, len(powers))
	for o := range powers {
		owners = append(owners, o)
	}
	sort.Slice(owners, func(i, j int) bool {
		if powers[owners[i]] != powers[owners[j]] {
			return powers[owners[i]] > powers[owners[j]]
		}
		return owners[i] < owners[j]
	})
	if len(owners) == 0 {
		return ""
	}
	return owners[0]
}
