package store

import (
	"encoding/json"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Memory is an in-process Store. It backs every test fixture and serves as
// the working tree of the persistent store.
type Memory struct {
	mu   sync.RWMutex
	tree map[string]Value
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tree: make(map[string]Value)}
}

// Read returns a deep copy of the subtree at path, or nil if absent.
func (m *Memory) Read(path string) (Value, error) {
	segs, err := Split(path)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := get(m.tree, segs)
	if !ok {
		return nil, nil
	}
	return Clone(v), nil
}

// Commit applies the whole update under one writer lock, so readers observe
// either all of it or none of it. Malformed updates are rejected before any
// path is written.
func (m *Memory) Commit(u Update) error {
	if len(u) == 0 {
		return nil
	}
	segsByPath, err := validate(u)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for path, v := range u {
		set(m.tree, segsByPath[path], v)
	}
	return nil
}

// Transact implements optimistic concurrency on the subtree at root: the
// current value is snapshotted together with a version digest, f computes the
// replacement, and the swap only lands if the digest still matches. On a
// mismatch the whole cycle is retried against the fresh value.
func (m *Memory) Transact(root string, f func(Value) (Value, error)) error {
	segs, err := Split(root)
	if err != nil {
		return err
	}
	for {
		m.mu.RLock()
		cur, _ := get(m.tree, segs)
		snapshot := Clone(cur)
		version := digest(cur)
		m.mu.RUnlock()

		next, err := f(snapshot)
		if err == ErrAborted {
			return nil
		}
		if err != nil {
			return err
		}

		m.mu.Lock()
		latest, _ := get(m.tree, segs)
		if digest(latest) != version {
			m.mu.Unlock()
			continue
		}
		set(m.tree, segs, next)
		m.mu.Unlock()
		return nil
	}
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error { return nil }

// snapshotTree returns a deep copy of the whole tree. Used by the persistent
// store when writing snapshots.
func (m *Memory) snapshotTree() map[string]Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Clone(m.tree).(map[string]Value)
}

// replaceTree swaps the whole tree. Used when loading a snapshot.
func (m *Memory) replaceTree(tree map[string]Value) {
	m.mu.Lock()
	m.tree = tree
	m.mu.Unlock()
}

// digest produces the version token used by Transact. Values round-trip
// through JSON before hashing so that int64/float64 representations of the
// same number compare equal.
func digest(v Value) uint64 {
	if v == nil {
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Values are built from JSON-compatible types only; an error here is
		// a programmer mistake.
		panic("store: unencodable value: " + err.Error())
	}
	return xxhash.Sum64(b)
}
