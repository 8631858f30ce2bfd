package world

import "fmt"

// BresenhamPath traces the line of tiles from a to b, inclusive of both
// endpoints. The classic integer error accumulation keeps the path on the
// grid for any direction, including negative coordinates.
func BresenhamPath(a, b TilePos) []TilePos {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy

	path := []TilePos{a}
	x, y := a.X, a.Y
	for x != b.X || y != b.Y {
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
		path = append(path, TilePos{X: x, Y: y})
	}
	return path
}

// ValidatePath checks that an explicit path starts at from, ends at to, and
// respects the length cap.
func ValidatePath(path []TilePos, from, to TilePos) error {
	if len(path) == 0 {
		return fmt.Errorf("world: empty path")
	}
	if len(path) > MaxPathLength {
		return fmt.Errorf("world: path of %d steps exceeds the %d step cap", len(path), MaxPathLength)
	}
	if path[0] != from {
		return fmt.Errorf("world: path starts at %s, not %s", path[0].Key(), from.Key())
	}
	if path[len(path)-1] != to {
		return fmt.Errorf("world: path ends at %s, not %s", path[len(path)-1].Key(), to.Key())
	}
	return nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
