package gfx

// Vec2 is a 2D vertex attribute.
type Vec2 struct {
	X float32
	Y float32
}

// QuadTexCoords samples the unit square upside down so that row 0 of the
// source lands at the top of the quad.
var QuadTexCoords = [4]Vec2{{0, 1}, {1, 1}, {1, 0}, {0, 0}}

// QuadPositions returns a full-height quad whose horizontal extent is
// srcWidth/targetWidth of the target, keeping source pixels square on a
// target with the same height.
func QuadPositions(srcWidth, targetWidth int) [4]Vec2 {
	s := float32(1)
	if targetWidth > 0 {
		s = float32(srcWidth) / float32(targetWidth)
	}
	return [4]Vec2{{-s, -1}, {+s, -1}, {+s, +1}, {-s, +1}}
}
