// Package store provides the hierarchical key-value store that backs every
// world. Values form a dynamic tree addressed by slash-separated paths. The
// only commit primitive is a multi-path update that is applied atomically:
// readers observe either all of an update's writes or none of them.
package store

import (
	"errors"
	"fmt"
	"strings"
)

// Value is a node of the dynamic tree: nil, bool, int64, float64, string,
// []Value or map[string]Value. It is an alias so that trees decoded from
// JSON unify with trees built in code. Decoded JSON may carry float64 where
// int64 is meant; consumers normalise on read.
type Value = any

// Update maps store paths to the values to write there. A nil value deletes
// the subtree at that path.
type Update map[string]Value

// ErrAborted is returned by a Transact callback to abandon the transaction
// without an error surfacing to the caller as a failure of the store itself.
var ErrAborted = errors.New("store: transaction aborted")

// Store is the persistence contract consumed by the engine and the command
// handlers.
type Store interface {
	// Read returns a snapshot of the subtree at path, or nil if absent.
	Read(path string) (Value, error)

	// Commit applies every path→value pair in u, or none of them. Setting a
	// path to nil deletes it. Paths within one update must not be nested
	// under one another.
	Commit(u Update) error

	// Transact runs f against the current value at root and attempts to
	// replace it with f's result, retrying while concurrent commits move the
	// value underneath it. Returning ErrAborted from f stops the transaction
	// without writing.
	Transact(root string, f func(current Value) (Value, error)) error

	// Close releases underlying resources.
	Close() error
}

// Split breaks a path into its segments, rejecting empty segments.
func Split(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("store: empty path")
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("store: path %q has an empty segment", path)
		}
	}
	return segs, nil
}

// Join assembles a path from segments.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

// Clone deep-copies a value so that callers and the store never alias the
// same maps or slices.
func Clone(v Value) Value {
	switch t := v.(type) {
	case map[string]Value:
		out := make(map[string]Value, len(t))
		for k, child := range t {
			out[k] = Clone(child)
		}
		return out
	case []Value:
		out := make([]Value, len(t))
		for i, child := range t {
			out[i] = Clone(child)
		}
		return out
	default:
		return v
	}
}

// get walks the tree along segs. The boolean reports whether the node exists.
func get(tree map[string]Value, segs []string) (Value, bool) {
	var cur Value = tree
	for _, s := range segs {
		m, ok := cur.(map[string]Value)
		if !ok {
			return nil, false
		}
		cur, ok = m[s]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// set writes v at segs, creating intermediate maps. A nil v deletes the node
// and prunes any parents left empty, so that an empty subtree and an absent
// one are indistinguishable.
func set(tree map[string]Value, segs []string, v Value) {
	if v == nil {
		deleteAt(tree, segs)
		return
	}
	cur := tree
	for _, s := range segs[:len(segs)-1] {
		child, ok := cur[s].(map[string]Value)
		if !ok {
			child = make(map[string]Value)
			cur[s] = child
		}
		cur = child
	}
	cur[segs[len(segs)-1]] = Clone(v)
}

func deleteAt(tree map[string]Value, segs []string) {
	if len(segs) == 1 {
		delete(tree, segs[0])
		return
	}
	child, ok := tree[segs[0]].(map[string]Value)
	if !ok {
		return
	}
	deleteAt(child, segs[1:])
	if len(child) == 0 {
		delete(tree, segs[0])
	}
}

// validate rejects malformed updates before any write is applied: bad paths,
// and pairs where one path is an ancestor of another (the outcome would
// depend on application order).
func validate(u Update) (map[string][]string, error) {
	segsByPath := make(map[string][]string, len(u))
	for path := range u {
		segs, err := Split(path)
		if err != nil {
			return nil, err
		}
		segsByPath[path] = segs
	}
	for a := range u {
		for b := range u {
			if a == b {
				continue
			}
			if strings.HasPrefix(b, a+"/") {
				return nil, fmt.Errorf("store: update paths %q and %q overlap", a, b)
			}
		}
	}
	return segsByPath, nil
}
