package world

import "testing"

func TestBresenhamStraightLine(t *testing.T) {
	path := BresenhamPath(TilePos{0, 0}, TilePos{3, 0})
	want := []TilePos{{0, 0}, {1, 0}, {2, 0}, {3, 0}}
	if len(path) != len(want) {
		t.Fatalf("expected %d steps, got %d: %v", len(want), len(path), path)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("step %d = %v, want %v", i, path[i], want[i])
		}
	}
}

func TestBresenhamNegativeDirection(t *testing.T) {
	path := BresenhamPath(TilePos{-1, -1}, TilePos{-4, -3})
	if path[0] != (TilePos{-1, -1}) || path[len(path)-1] != (TilePos{-4, -3}) {
		t.Fatalf("endpoints wrong: %v", path)
	}
	for i := 1; i < len(path); i++ {
		dx := abs(path[i].X - path[i-1].X)
		dy := abs(path[i].Y - path[i-1].Y)
		if dx > 1 || dy > 1 || (dx == 0 && dy == 0) {
			t.Fatalf("non-adjacent step %v -> %v", path[i-1], path[i])
		}
	}
}

func TestBresenhamDiagonal(t *testing.T) {
	path := BresenhamPath(TilePos{0, 0}, TilePos{2, 2})
	if path[len(path)-1] != (TilePos{2, 2}) {
		t.Fatalf("diagonal endpoint wrong: %v", path)
	}
}

func TestValidatePathCap(t *testing.T) {
	long := make([]TilePos, MaxPathLength)
	for i := range long {
		long[i] = TilePos{X: i, Y: 0}
	}
	if err := ValidatePath(long, long[0], long[len(long)-1]); err != nil {
		t.Fatalf("a %d step path must be accepted: %v", MaxPathLength, err)
	}

	tooLong := append(long, TilePos{X: MaxPathLength, Y: 0})
	if err := ValidatePath(tooLong, tooLong[0], tooLong[len(tooLong)-1]); err == nil {
		t.Fatalf("a %d step path must be rejected", MaxPathLength+1)
	}
}

func TestValidatePathEndpoints(t *testing.T) {
	path := []TilePos{{0, 0}, {1, 0}}
	if err := ValidatePath(path, TilePos{5, 5}, TilePos{1, 0}); err == nil {
		t.Fatalf("expected wrong-start rejection")
	}
	if err := ValidatePath(path, TilePos{0, 0}, TilePos{9, 9}); err == nil {
		t.Fatalf("expected wrong-end rejection")
	}
	if err := ValidatePath(nil, TilePos{0, 0}, TilePos{0, 0}); err == nil {
		t.Fatalf("expected empty path rejection")
	}
}
