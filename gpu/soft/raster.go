package soft

import (
	"math"

	"github.com/pthm-cable/currents/gpu"
)

// screenTriangle is a triangle in pixel space (row 0 at the top) with depth
// mapped to [0, 1].
type screenTriangle struct {
	x, y, z    [3]float64
	color      [3]gpu.Texel
	area       float64
	minX, maxX int
	minY, maxY int
}

// toScreen performs the perspective divide and viewport transform.
// Triangles with a vertex at or behind the eye plane are dropped rather than
// clipped.
func toScreen(tri gpu.Triangle, width, height int) (screenTriangle, bool) {
	var st screenTriangle
	for i, v := range tri {
		p := v.Position
		if !(p.W > 0) {
			return st, false
		}
		nx, ny, nz := p.X/p.W, p.Y/p.W, p.Z/p.W
		if math.IsNaN(nx) || math.IsNaN(ny) || math.IsNaN(nz) {
			return st, false
		}
		st.x[i] = (nx + 1) / 2 * float64(width)
		st.y[i] = (1 - ny) / 2 * float64(height)
		st.z[i] = (nz + 1) / 2
		st.color[i] = v.Color
	}

	st.area = edge(st.x[0], st.y[0], st.x[1], st.y[1], st.x[2], st.y[2])
	if st.area == 0 {
		return st, false
	}

	minX := math.Min(st.x[0], math.Min(st.x[1], st.x[2]))
	maxX := math.Max(st.x[0], math.Max(st.x[1], st.x[2]))
	minY := math.Min(st.y[0], math.Min(st.y[1], st.y[2]))
	maxY := math.Max(st.y[0], math.Max(st.y[1], st.y[2]))
	if maxX < 0 || maxY < 0 || minX >= float64(width) || minY >= float64(height) {
		return st, false
	}
	st.minX = max(int(math.Floor(minX)), 0)
	st.maxX = min(int(math.Ceil(maxX)), width-1)
	st.minY = max(int(math.Floor(minY)), 0)
	st.maxY = min(int(math.Ceil(maxY)), height-1)
	return st, true
}

// edge is twice the signed area of (a, b, c).
func edge(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// rasterize fills the pixels of st whose centres fall inside it, limited to
// rows [y0, y1). Colour is taken from the barycentric blend of the vertices.
func rasterize(st *screenTriangle, f *framebuffer, state gpu.DrawState, y0, y1 int) {
	rowStart := max(st.minY, y0)
	rowEnd := min(st.maxY+1, y1)
	if rowStart >= rowEnd {
		return
	}

	width := f.color.width
	depthTest := state.DepthTest && f.depth != nil
	depthWrite := state.DepthWrite && f.depth != nil

	for y := rowStart; y < rowEnd; y++ {
		py := float64(y) + 0.5
		for x := st.minX; x <= st.maxX; x++ {
			px := float64(x) + 0.5
			b0 := edge(st.x[1], st.y[1], st.x[2], st.y[2], px, py) / st.area
			b1 := edge(st.x[2], st.y[2], st.x[0], st.y[0], px, py) / st.area
			b2 := 1 - b0 - b1
			if b0 < 0 || b1 < 0 || b2 < 0 {
				continue
			}

			z := b0*st.z[0] + b1*st.z[1] + b2*st.z[2]
			if z < 0 || z > 1 {
				continue
			}
			i := y*width + x
			if depthTest && !(float32(z) < f.depth.data[i]) {
				continue
			}

			var c gpu.Texel
			for k := range c {
				c[k] = float32(b0*float64(st.color[0][k]) + b1*float64(st.color[1][k]) + b2*float64(st.color[2][k]))
			}
			f.color.store(x, y, c)
			if depthWrite {
				f.depth.data[i] = float32(z)
			}
		}
	}
}
