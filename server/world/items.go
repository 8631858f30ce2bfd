package world

import (
	"sort"

	"github.com/lmf-git/gisaima/server/store"
)

// ItemKind classifies item codes. Anything not in the catalogue is treated
// as a plain resource.
type ItemKind string

const (
	KindResource ItemKind = "resource"
	KindWeapon   ItemKind = "weapon"
	KindTool     ItemKind = "tool"
	KindScroll   ItemKind = "scroll"
	KindArtifact ItemKind = "artifact"
)

// ItemBag maps item codes to quantities. Zero and negative quantities are
// never stored; an empty bag encodes as nil.
type ItemBag map[string]int64

// DecodeItems normalises the stored items collection. The canonical form is
// a code→quantity map, but old records may carry a list of entry maps (or
// bare code strings); those are folded into the map form here and only the
// map form is ever written back.
func DecodeItems(v store.Value) ItemBag {
	bag := ItemBag{}
	switch t := v.(type) {
	case map[string]store.Value:
		for code, qv := range t {
			if q, ok := Int(qv); ok && q > 0 {
				bag[code] += q
			} else if entry := Map(qv); entry != nil {
				// Legacy keyed entry: {id: …, quantity: …}.
				code := StrOr(field(entry, "id"), code)
				bag[code] += IntOr(field(entry, "quantity"), 1)
			}
		}
	case []store.Value:
		for _, ev := range t {
			switch e := ev.(type) {
			case string:
				bag[e]++
			case map[string]store.Value:
				code, ok := Str(field(e, "id"))
				if !ok {
					code, ok = Str(field(e, "type"))
				}
				if ok {
					bag[code] += IntOr(field(e, "quantity"), 1)
				}
			}
		}
	}
	if len(bag) == 0 {
		return nil
	}
	return bag
}

// Encode renders the bag in canonical map form, or nil when empty.
func (b ItemBag) Encode() store.Value {
	if len(b) == 0 {
		return nil
	}
	m := make(map[string]store.Value, len(b))
	for code, q := range b {
		if q > 0 {
			m[code] = q
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// Clone copies the bag.
func (b ItemBag) Clone() ItemBag {
	if b == nil {
		return nil
	}
	out := make(ItemBag, len(b))
	for code, q := range b {
		out[code] = q
	}
	return out
}

// Add merges other into the bag in place.
func (b ItemBag) Add(other ItemBag) {
	for code, q := range other {
		b[code] += q
	}
}

// Covers reports whether the bag holds at least cost of every item.
func (b ItemBag) Covers(cost ItemBag) bool {
	for code, q := range cost {
		if b[code] < q {
			return false
		}
	}
	return true
}

// Deduct removes cost from the bag, dropping codes that reach zero. It must
// only be called after Covers.
func (b ItemBag) Deduct(cost ItemBag) {
	for code, q := range cost {
		b[code] -= q
		if b[code] <= 0 {
			delete(b, code)
		}
	}
}

// Total is the summed quantity across all codes.
func (b ItemBag) Total() int64 {
	var n int64
	for _, q := range b {
		n += q
	}
	return n
}

// Codes returns the item codes in sorted order, for deterministic iteration.
func (b ItemBag) Codes() []string {
	codes := make([]string, 0, len(b))
	for code := range b {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
