package geo

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSingular is returned when a matrix has no inverse.
var ErrSingular = errors.New("geo: singular matrix")

// Mat4 is a 4x4 matrix stored column-major, m[col*4+row].
type Mat4 [16]float64

// Vec4 is a homogeneous coordinate.
type Vec4 struct {
	X, Y, Z, W float64
}

// Identity returns the identity matrix.
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// At returns the element at row r, column c.
func (m Mat4) At(r, c int) float64 {
	return m[c*4+r]
}

// Mul returns m * o.
func (m Mat4) Mul(o Mat4) Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[k*4+r] * o[c*4+k]
			}
			out[c*4+r] = sum
		}
	}
	return out
}

// Transform returns m * v.
func (m Mat4) Transform(v Vec4) Vec4 {
	return Vec4{
		X: m[0]*v.X + m[4]*v.Y + m[8]*v.Z + m[12]*v.W,
		Y: m[1]*v.X + m[5]*v.Y + m[9]*v.Z + m[13]*v.W,
		Z: m[2]*v.X + m[6]*v.Y + m[10]*v.Z + m[14]*v.W,
		W: m[3]*v.X + m[7]*v.Y + m[11]*v.Z + m[15]*v.W,
	}
}

// Project transforms a point (w = 1).
func (m Mat4) Project(p r3.Vec) Vec4 {
	return m.Transform(Vec4{X: p.X, Y: p.Y, Z: p.Z, W: 1})
}

// Inverse returns the inverse of m.
func (m Mat4) Inverse() (Mat4, error) {
	a := mat.NewDense(4, 4, nil)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			a.Set(r, c, m.At(r, c))
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return Mat4{}, ErrSingular
	}

	var out Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			out[c*4+r] = inv.At(r, c)
		}
	}
	return out, nil
}

// Perspective builds an OpenGL-style projection mapping view depth
// [near, far] to NDC z in [-1, 1]. fovY is in radians.
func Perspective(fovY, aspect, near, far float64) Mat4 {
	f := 1 / math.Tan(fovY/2)
	var m Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = (far + near) / (near - far)
	m[11] = -1
	m[14] = 2 * far * near / (near - far)
	return m
}

// LookAt builds a right-handed view matrix.
func LookAt(eye, center, up r3.Vec) Mat4 {
	f := r3.Unit(r3.Sub(center, eye))
	s := r3.Unit(r3.Cross(f, up))
	u := r3.Cross(s, f)

	m := Identity()
	m[0], m[4], m[8] = s.X, s.Y, s.Z
	m[1], m[5], m[9] = u.X, u.Y, u.Z
	m[2], m[6], m[10] = -f.X, -f.Y, -f.Z
	m[12] = -r3.Dot(s, eye)
	m[13] = -r3.Dot(u, eye)
	m[14] = r3.Dot(f, eye)
	return m
}
