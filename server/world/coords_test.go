package world

import "testing"

func TestChunkPosOfBoundaries(t *testing.T) {
	cases := []struct {
		x, y int
		want string
	}{
		{0, 0, "0,0"},
		{19, 19, "0,0"},
		{20, 20, "1,1"},
		{-1, -1, "-1,-1"},
		{-20, -20, "-1,-1"},
		{-21, -21, "-2,-2"},
		{39, -41, "1,-3"},
	}
	for _, c := range cases {
		if got := ChunkPosOf(c.x, c.y).Key(); got != c.want {
			t.Fatalf("ChunkPosOf(%d,%d) = %q, want %q", c.x, c.y, got, c.want)
		}
	}
}

func TestTileKeyRoundTrip(t *testing.T) {
	for _, pos := range []TilePos{{0, 0}, {-1, -1}, {20, -20}, {1234, -5678}} {
		parsed, err := ParseTileKey(pos.Key())
		if err != nil {
			t.Fatalf("ParseTileKey(%q) failed: %v", pos.Key(), err)
		}
		if parsed != pos {
			t.Fatalf("round trip of %v gave %v", pos, parsed)
		}
	}
}

func TestParseChunkKeyCanonical(t *testing.T) {
	if _, err := ParseChunkKey("-1,-1"); err != nil {
		t.Fatalf("canonical key rejected: %v", err)
	}
	for _, bad := range []string{"", "1", "1,2,3", "01,2", "+1,2", "-0,1", "1, 2", "a,b"} {
		if _, err := ParseChunkKey(bad); err == nil {
			t.Fatalf("expected rejection of %q", bad)
		}
	}
}

func TestTileKeyMatchesChunkKey(t *testing.T) {
	// For each stored (chunkKey, tileKey) pair the engine may produce,
	// re-deriving the chunk from the tile key must reproduce the chunk key.
	for x := -45; x <= 45; x += 9 {
		for y := -45; y <= 45; y += 7 {
			pos := TilePos{X: x, Y: y}
			parsed, err := ParseTileKey(pos.Key())
			if err != nil {
				t.Fatalf("parse %q: %v", pos.Key(), err)
			}
			if parsed.Chunk().Key() != pos.Chunk().Key() {
				t.Fatalf("chunk key mismatch for %v", pos)
			}
		}
	}
}

func TestChunkPosPackedDistinct(t *testing.T) {
	seen := map[int64]ChunkPos{}
	for x := -3; x <= 3; x++ {
		for y := -3; y <= 3; y++ {
			c := ChunkPos{X: x, Y: y}
			if prev, dup := seen[c.Packed()]; dup {
				t.Fatalf("packed collision between %v and %v", prev, c)
			}
			seen[c.Packed()] = c
		}
	}
}
