package world

import (
	"github.com/lmf-git/gisaima/server/store"
)

// Helpers for reading dynamic store values. The store may hand back int64 or
// float64 for the same number depending on whether the value round-tripped
// through the journal, so every numeric read goes through Int.

// Map returns v as a value map, or nil if it is anything else.
func Map(v store.Value) map[string]store.Value {
	m, _ := v.(map[string]store.Value)
	return m
}

// Int reads an integer out of a dynamic value.
func Int(v store.Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// IntOr reads an integer, falling back to def when absent or mistyped.
func IntOr(v store.Value, def int64) int64 {
	if n, ok := Int(v); ok {
		return n
	}
	return def
}

// Str reads a string out of a dynamic value.
func Str(v store.Value) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// StrOr reads a string, falling back to def.
func StrOr(v store.Value, def string) string {
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// Bool reads a bool, absent values read as false.
func Bool(v store.Value) bool {
	b, _ := v.(bool)
	return b
}

// List returns v as a slice of values, or nil.
func List(v store.Value) []store.Value {
	l, _ := v.([]store.Value)
	return l
}

func field(m map[string]store.Value, key string) store.Value {
	if m == nil {
		return nil
	}
	return m[key]
}
