// Package sliceutil implements small generic helpers over slices used across
// the server packages.
package sliceutil

// Filter returns the elements of s for which keep returns true, in order.
func Filter[T any](s []T, keep func(T) bool) []T {
	out := make([]T, 0, len(s))
	for _, v := range s {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// Index returns the index of the first element for which match returns true,
// or -1.
func Index[T any](s []T, match func(T) bool) int {
	for i, v := range s {
		if match(v) {
			return i
		}
	}
	return -1
}

// DeleteVal returns s without the first occurrence of v.
func DeleteVal[T comparable](s []T, v T) []T {
	for i, e := range s {
		if e == v {
			return append(append(make([]T, 0, len(s)-1), s[:i]...), s[i+1:]...)
		}
	}
	return s
}

// Contains reports whether v occurs in s.
func Contains[T comparable](s []T, v T) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
