package geom

import (
	"math"
)

// Vec is a vector of comoving simulation coordinates.
type Vec [3]float64

// Add returns the sum of two vectors.
func (v Vec) Add(u Vec) Vec {
	return Vec{v[0] + u[0], v[1] + u[1], v[2] + u[2]}
}

// Sub returns the difference v - u.
func (v Vec) Sub(u Vec) Vec {
	return Vec{v[0] - u[0], v[1] - u[1], v[2] - u[2]}
}

// Scale returns v multiplied by a scalar.
func (v Vec) Scale(s float64) Vec {
	return Vec{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the dot product of two vectors.
func (v Vec) Dot(u Vec) float64 {
	return v[0]*u[0] + v[1]*u[1] + v[2]*u[2]
}

// Norm returns the Euclidean norm of v.
func (v Vec) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Dist returns the Euclidean distance between v and u.
func (v Vec) Dist(u Vec) float64 {
	return v.Sub(u).Norm()
}

// PeriodicSub returns the minimum-image separation v - u in a periodic box
// of the given width.
func PeriodicSub(v, u Vec, width float64) Vec {
	d := v.Sub(u)
	half := width / 2
	for i := 0; i < 3; i++ {
		if d[i] > half {
			d[i] -= width
		} else if d[i] < -half {
			d[i] += width
		}
	}
	return d
}

// PeriodicDist returns the minimum-image distance between v and u in a
// periodic box of the given width.
func PeriodicDist(v, u Vec, width float64) float64 {
	return PeriodicSub(v, u, width).Norm()
}
