package domain

import "github.com/paulmach/orb"

// Bound converts the box to an orb.Bound.
func (b BoundingBox2D) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.LowerLeft.X, b.LowerLeft.Y},
		Max: orb.Point{b.UpperRight.X, b.UpperRight.Y},
	}
}

// BoundingBoxFromBound converts an orb.Bound to a box.
func BoundingBoxFromBound(b orb.Bound) BoundingBox2D {
	return BoundingBox2D{
		LowerLeft:  Coordinate2D{X: b.Min[0], Y: b.Min[1]},
		UpperRight: Coordinate2D{X: b.Max[0], Y: b.Max[1]},
	}
}

// DensifiedRing returns the outline of the box with n points per edge, counter-clockwise
// from the lower left corner. Projecting the ring instead of two corners keeps curved
// edges inside the projected bound.
func (b BoundingBox2D) DensifiedRing(n int) orb.Ring {
	n = max(n, 1)
	ll, ur := b.LowerLeft, b.UpperRight
	corners := []orb.Point{{ll.X, ll.Y}, {ur.X, ll.Y}, {ur.X, ur.Y}, {ll.X, ur.Y}, {ll.X, ll.Y}}

	ring := make(orb.Ring, 0, 4*n+1)
	for i := 0; i < 4; i++ {
		from, to := corners[i], corners[i+1]
		for k := 0; k < n; k++ {
			f := float64(k) / float64(n)
			ring = append(ring, orb.Point{from[0] + f*(to[0]-from[0]), from[1] + f*(to[1]-from[1])})
		}
	}
	return append(ring, ring[0])
}
