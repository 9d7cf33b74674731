package geom

// Unwrap shifts positions in place so that a group straddling the periodic
// boundary becomes spatially contiguous. For each dimension, particles more
// than half the box below the group's maximum are moved up by one box
// width. Fails for groups wider than half the box in any dimension, which
// no halo ever approaches.
func Unwrap(pos []Vec, boxWidth float64) {
	if len(pos) == 0 {
		return
	}

	var max Vec
	copy(max[:], pos[0][:])
	for _, p := range pos[1:] {
		for i := 0; i < 3; i++ {
			if p[i] > max[i] {
				max[i] = p[i]
			}
		}
	}

	half := boxWidth / 2
	for j := range pos {
		for i := 0; i < 3; i++ {
			if max[i]-pos[j][i] > half {
				pos[j][i] += boxWidth
			}
		}
	}
}

// WrapVec returns v with each coordinate wrapped into [0, boxWidth).
func WrapVec(v Vec, boxWidth float64) Vec {
	for i := 0; i < 3; i++ {
		for v[i] < 0 {
			v[i] += boxWidth
		}
		for v[i] >= boxWidth {
			v[i] -= boxWidth
		}
	}
	return v
}

// Centroid returns the mean of the given vectors.
func Centroid(vs []Vec) Vec {
	var c Vec
	if len(vs) == 0 {
		return c
	}
	for _, v := range vs {
		c = c.Add(v)
	}
	return c.Scale(1 / float64(len(vs)))
}
