package grid

import "github.com/go-gl/mathgl/mgl64"

// Box is an axis-aligned bounding volume in world space.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

func NewBox(a, b mgl64.Vec3) Box {
	var out Box
	for i := 0; i < 3; i++ {
		if a[i] <= b[i] {
			out.Min[i], out.Max[i] = a[i], b[i]
		} else {
			out.Min[i], out.Max[i] = b[i], a[i]
		}
	}
	return out
}

func (b Box) Translate(d mgl64.Vec3) Box {
	return Box{Min: b.Min.Add(d), Max: b.Max.Add(d)}
}

func (b Box) Size() mgl64.Vec3 { return b.Max.Sub(b.Min) }

// BoundsAsMoved returns b as it would be once its owner moves from current to
// target. Use it when a collider has not yet caught up with a transform change.
func BoundsAsMoved(b Box, current, target mgl64.Vec3) Box {
	return b.Translate(target.Sub(current))
}
