package common

import (
	"math"
)

// Plane represents a plane in 3D space using the equation: ax + by + cz + d = 0
// where (a, b, c) is the normal and d is the distance from origin.
type Plane struct {
	Normal   [3]float32
	Distance float32
}

// Frustum represents the six planes of a view frustum for culling.
// Planes are oriented so that positive half-space is inside the frustum.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

// FrustumPlane indices for clarity
const (
	FrustumLeft   = 0
	FrustumRight  = 1
	FrustumBottom = 2
	FrustumTop    = 3
	FrustumNear   = 4
	FrustumFar    = 5
)

// ExtractFrustumFromMatrix extracts frustum planes from a combined projection matrix
// (projection * view, optionally * model). The planes live in whatever space the matrix
// transforms from, so passing a model-view-projection matrix yields object-space planes.
// Clip depth is assumed to be in [0, 1], which makes the near plane row 2 on its own.
// Uses the Gribb/Hartmann method for plane extraction.
//
// Reference: https://www8.cs.umu.se/kurser/5DV051/HT12/lab/plane_extraction.pdf
//
// Parameters:
//   - viewProj: 16 float32 values representing the combined matrix (column-major)
//
// Returns:
//   - Frustum: the extracted frustum with normalized planes
func ExtractFrustumFromMatrix(viewProj []float32) Frustum {
	var f Frustum

	// For column-major matrix M, element M[row][col] is at index col*4 + row.
	row := func(r int) [4]float32 {
		return [4]float32{viewProj[r], viewProj[4+r], viewProj[8+r], viewProj[12+r]}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	set := func(index int, v [4]float32) {
		f.Planes[index].Normal = [3]float32{v[0], v[1], v[2]}
		f.Planes[index].Distance = v[3]
	}
	add := func(a, b [4]float32) [4]float32 {
		return [4]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
	}
	sub := func(a, b [4]float32) [4]float32 {
		return [4]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
	}

	set(FrustumLeft, add(r3, r0))
	set(FrustumRight, sub(r3, r0))
	set(FrustumBottom, add(r3, r1))
	set(FrustumTop, sub(r3, r1))
	set(FrustumNear, r2)
	set(FrustumFar, sub(r3, r2))

	for i := range f.Planes {
		f.normalizePlane(i)
	}

	return f
}

// normalizePlane normalizes a frustum plane so that the normal has unit length.
func (f *Frustum) normalizePlane(index int) {
	p := &f.Planes[index]
	length := float32(math.Sqrt(float64(
		p.Normal[0]*p.Normal[0] +
			p.Normal[1]*p.Normal[1] +
			p.Normal[2]*p.Normal[2],
	)))

	if length > 0 {
		invLen := 1.0 / length
		p.Normal[0] *= invLen
		p.Normal[1] *= invLen
		p.Normal[2] *= invLen
		p.Distance *= invLen
	}
}

// IntersectsAABB reports whether an axis-aligned box is at least partially inside the frustum.
// The test is conservative: boxes near frustum corners may be reported as intersecting.
//
// Parameters:
//   - center: box center in the frustum's space
//   - extent: box half-size along each axis
//
// Returns:
//   - bool: false only when the box lies entirely outside one of the planes
func (f *Frustum) IntersectsAABB(center, extent [3]float32) bool {
	for i := range f.Planes {
		p := &f.Planes[i]
		r := abs32(p.Normal[0])*extent[0] + abs32(p.Normal[1])*extent[1] + abs32(p.Normal[2])*extent[2]
		d := p.Normal[0]*center[0] + p.Normal[1]*center[1] + p.Normal[2]*center[2] + p.Distance
		if d < -r {
			return false
		}
	}
	return true
}

// PlanesAsVec4 flattens the planes into (nx, ny, nz, d) quadruples for uniform upload.
func (f *Frustum) PlanesAsVec4() [6][4]float32 {
	var out [6][4]float32
	for i, p := range f.Planes {
		out[i] = [4]float32{p.Normal[0], p.Normal[1], p.Normal[2], p.Distance}
	}
	return out
}

// FrustumFromVec4 rebuilds a Frustum from the flattened representation produced by PlanesAsVec4.
func FrustumFromVec4(planes [6][4]float32) Frustum {
	var f Frustum
	for i, p := range planes {
		f.Planes[i] = Plane{Normal: [3]float32{p[0], p[1], p[2]}, Distance: p[3]}
	}
	return f
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
