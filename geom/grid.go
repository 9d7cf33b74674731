package geom

import (
	"math"
)

// Grid provides an interface for reasoning over a 1D slice as if it were a
// 3D grid.
type Grid struct {
	Origin, Width        [3]int
	Length, Area, Volume int
	uBounds              [3]int
}

// NewGrid returns a new Grid instance.
func NewGrid(origin [3]int, width [3]int) *Grid {
	g := &Grid{}
	g.Init(origin, width)
	return g
}

// Init initializes a Grid instance.
func (g *Grid) Init(origin [3]int, width [3]int) {
	g.Origin = origin
	g.Width = width

	g.Length = width[0]
	g.Area = width[0] * width[1]
	g.Volume = width[0] * width[1] * width[2]

	for i := 0; i < 3; i++ {
		g.uBounds[i] = g.Origin[i] + g.Width[i]
	}
}

// Idx returns the grid index corresponding to a set of coordinates.
func (g *Grid) Idx(x, y, z int) int {
	return ((x - g.Origin[0]) + (y-g.Origin[1])*g.Length +
		(z-g.Origin[2])*g.Area)
}

// IdxCheck returns an index and true if the given coordinates are valid and
// false otherwise.
func (g *Grid) IdxCheck(x, y, z int) (idx int, ok bool) {
	if !g.BoundsCheck(x, y, z) {
		return -1, false
	}

	return g.Idx(x, y, z), true
}

// BoundsCheck returns true if the given coordinates are within the Grid and
// false otherwise.
func (g *Grid) BoundsCheck(x, y, z int) bool {
	return (g.Origin[0] <= x && g.Origin[1] <= y && g.Origin[2] <= z) &&
		(x < g.uBounds[0] && y < g.uBounds[1] &&
			z < g.uBounds[2])
}

// Coords returns the x, y, z coordinates of a point from its grid index.
func (g *Grid) Coords(idx int) (x, y, z int) {
	x = idx % g.Length
	y = (idx % g.Area) / g.Length
	z = idx / g.Area
	return x, y, z
}

// CellGrid bins particle positions into cubic cells. The halo finder uses
// it to seed its linking queries one cell at a time so that the peak size
// of any single query round stays bounded.
//
// A CellGrid holds index lists into the caller's position slice, not the
// positions themselves.
type CellGrid struct {
	Grid
	BoxWidth  float64
	CellWidth float64
	Cells     [][]int
}

// BinParticles bins the given positions into a CellGrid with approximately
// targetCells cells. Positions outside [0, boxWidth) are clamped into the
// edge cells, which keeps ghost copies shifted across the periodic boundary
// in valid cells.
func BinParticles(pos []Vec, boxWidth float64, targetCells int) *CellGrid {
	if targetCells < 1 {
		targetCells = 1
	}
	side := int(math.Ceil(math.Cbrt(float64(targetCells))))
	if side < 1 {
		side = 1
	}

	cg := &CellGrid{
		BoxWidth:  boxWidth,
		CellWidth: boxWidth / float64(side),
	}
	cg.Init([3]int{0, 0, 0}, [3]int{side, side, side})
	cg.Cells = make([][]int, cg.Volume)

	for i, p := range pos {
		x := clampCell(int(math.Floor(p[0]/cg.CellWidth)), side)
		y := clampCell(int(math.Floor(p[1]/cg.CellWidth)), side)
		z := clampCell(int(math.Floor(p[2]/cg.CellWidth)), side)
		idx := cg.Idx(x, y, z)
		cg.Cells[idx] = append(cg.Cells[idx], i)
	}

	return cg
}

func clampCell(c, side int) int {
	if c < 0 {
		return 0
	}
	if c >= side {
		return side - 1
	}
	return c
}
