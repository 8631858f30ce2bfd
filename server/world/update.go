package world

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/lmf-git/gisaima/server/store"
)

// Update is the staged, path-keyed write set built up by command handlers
// and by the tick phases, committed in one atomic store write. Status
// changes for groups go through SetGroup, SetGroupFields and DeleteGroup,
// which stage status claims, so that two producers staging
// different statuses for the same group collapse to one winner before the
// commit, never after it.
type Update struct {
	writes store.Update
	claims map[string][]statusClaim
}

type statusClaim struct {
	status GroupStatus
	// record is the full group record to write at the base path, if the
	// producer staged a whole record.
	record map[string]store.Value
	// fields are relative field writes under the base path; nil deletes.
	fields map[string]store.Value
	// remove indicates the producer wants the group deleted. Deletions carry
	// the priority of the status that caused them.
	remove bool
}

// NewUpdate returns an empty staged update.
func NewUpdate() *Update {
	return &Update{writes: store.Update{}, claims: map[string][]statusClaim{}}
}

// Set stages a write; a later Set of the same path wins.
func (u *Update) Set(path string, v store.Value) {
	u.writes[path] = v
}

// Delete stages a subtree deletion.
func (u *Update) Delete(path string) {
	u.writes[path] = nil
}

// Len is the number of staged writes, including unresolved claims.
func (u *Update) Len() int {
	return len(u.writes) + len(u.claims)
}

// SetGroup stages a whole group record at groupPath as a status claim, so a
// competing claim for the same group resolves by priority.
func (u *Update) SetGroup(groupPath string, g *Group) {
	record, _ := g.Encode().(map[string]store.Value)
	u.claims[groupPath] = append(u.claims[groupPath], statusClaim{
		status: g.Status,
		record: record,
	})
}

// SetGroupFields stages field-level writes under groupPath tied to a status
// claim. The status field itself is staged implicitly.
func (u *Update) SetGroupFields(groupPath string, status GroupStatus, fields map[string]store.Value) {
	u.claims[groupPath] = append(u.claims[groupPath], statusClaim{
		status: status,
		fields: fields,
	})
}

// DeleteGroup stages the removal of a group with the authority of status
// (e.g. a battle wipe removes with "fighting" priority, so a concurrent
// "moving" claim cannot resurrect the group).
func (u *Update) DeleteGroup(groupPath string, status GroupStatus) {
	u.claims[groupPath] = append(u.claims[groupPath], statusClaim{
		status: status,
		remove: true,
	})
}

// statusPriority orders competing status writes. Higher wins.
func statusPriority(s GroupStatus) int {
	switch s {
	case StatusFighting:
		return 10
	case StatusBuilding:
		return 8
	case StatusGathering:
		return 6
	case StatusDemobilising:
		return 5
	case StatusMoving:
		return 4
	case StatusIdle:
		return 2
	default:
		return 1
	}
}

// incompatibleFields lists the sibling field names that must not survive
// next to the winning status.
func incompatibleFields(winner GroupStatus) []string {
	switch winner {
	case StatusFighting, StatusFleeing:
		return []string{
			"movementPath", "pathIndex", "nextMoveTime",
			"targetX", "targetY", "moveSpeed", "moveStarted",
		}
	case StatusMoving:
		return []string{
			"battleId", "battleSide", "battleRole", "inBattle", "fleeTickRequested",
		}
	default:
		return nil
	}
}

// Sanitise collapses competing status claims into their priority winner and
// scrubs staged sibling writes that contradict it. It must run before Build.
func (u *Update) Sanitise(log *slog.Logger) {
	paths := make([]string, 0, len(u.claims))
	for p := range u.claims {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, base := range paths {
		claims := u.claims[base]
		winner := claims[0]
		for _, c := range claims[1:] {
			if statusPriority(c.status) > statusPriority(winner.status) {
				winner = c
			}
		}
		if len(claims) > 1 && log != nil {
			log.Debug("collapsed conflicting status writes",
				"group", base, "winner", string(winner.status), "claims", len(claims))
		}

		if winner.remove {
			u.writes[base] = nil
			u.scrubSubpaths(base, nil)
			continue
		}
		drop := incompatibleFields(winner.status)
		if winner.record != nil {
			for _, f := range drop {
				delete(winner.record, f)
			}
			u.writes[base] = winner.record
			u.scrubSubpaths(base, nil)
			continue
		}
		for f, v := range winner.fields {
			u.writes[store.Join(base, f)] = v
		}
		u.writes[store.Join(base, "status")] = string(winner.status)
		u.scrubSubpaths(base, keepSet(winner.fields))
		for _, f := range drop {
			u.writes[store.Join(base, f)] = nil
		}
	}
	u.claims = map[string][]statusClaim{}
}

func keepSet(fields map[string]store.Value) map[string]bool {
	keep := make(map[string]bool, len(fields)+1)
	for f := range fields {
		keep[f] = true
	}
	keep["status"] = true
	return keep
}

// scrubSubpaths removes already-staged writes under base that are not in
// keep (keep nil removes all of them). Claims always re-stage their own
// fields afterwards, so this only discards losing producers' leftovers.
func (u *Update) scrubSubpaths(base string, keep map[string]bool) {
	prefix := base + "/"
	for path := range u.writes {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rel := path[len(prefix):]
		if keep != nil && keep[rel] {
			continue
		}
		delete(u.writes, path)
	}
}

// Build finalises the staged update. Any pending claims are sanitised first.
func (u *Update) Build(log *slog.Logger) store.Update {
	if len(u.claims) > 0 {
		u.Sanitise(log)
	}
	return u.writes
}

// Commit sanitises, then applies the update through the store.
func (u *Update) Commit(s store.Store, log *slog.Logger) error {
	return s.Commit(u.Build(log))
}
