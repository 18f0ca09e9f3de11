package field

import (
	"fmt"
	"math"

	"github.com/pthm-cable/currents/geo"
)

// globalEpsilon is the tolerance, in degrees, for treating a longitude axis
// as covering the whole globe.
const globalEpsilon = 1e-6

// Range is a closed [Min, Max] interval.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Width returns Max - Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Normalize maps v into [0, 1] over the range. A zero-width range maps
// everything to 0.
func (r Range) Normalize(v float64) float64 {
	w := r.Width()
	if w == 0 {
		return 0
	}
	return (v - r.Min) / w
}

// Layout addresses a lon x lat x lev grid as a 2D texture of
// LonCount columns and LatCount*LevCount rows. Each level occupies a block
// of LatCount rows.
type Layout struct {
	LonCount, LatCount, LevCount          int
	LonMin, LatMin, LevMin                float64
	LonInterval, LatInterval, LevInterval float64
	// Global is set when the longitude axis spans the whole globe, so the
	// neighbour of the last column is the first.
	Global bool
}

// NewLayout derives the texture layout from a dataset's declared bounds.
func NewLayout(ds *Dataset) Layout {
	l := Layout{
		LonCount:    ds.Dimension.Lon,
		LatCount:    ds.Dimension.Lat,
		LevCount:    ds.Dimension.Lev,
		LonMin:      ds.Lon.Min,
		LatMin:      ds.Lat.Min,
		LevMin:      ds.Lev.Min,
		LonInterval: interval(ds.Lon, ds.Dimension.Lon),
		LatInterval: interval(ds.Lat, ds.Dimension.Lat),
		LevInterval: interval(ds.Lev, ds.Dimension.Lev),
	}
	if l.LonCount > 1 {
		l.Global = ds.Lon.Max-ds.Lon.Min+l.LonInterval >= 360-globalEpsilon
	}
	return l
}

func interval(a Axis, count int) float64 {
	if count <= 1 {
		return 0
	}
	return (a.Max - a.Min) / float64(count-1)
}

// TextureSize returns the width and height of a component texture.
func (l Layout) TextureSize() (width, height int) {
	return l.LonCount, l.LatCount * l.LevCount
}

// Indices maps a position to fractional longitude and latitude indices and a
// rounded level index. Longitude is wrapped relative to LonMin and latitude
// is clamped to [-90, 90] before mapping.
func (l Layout) Indices(lon, lat, lev float64) (fx, fy float64, level int) {
	rel := geo.WrapLongitude(lon - l.LonMin)
	if l.LonInterval > 0 {
		if !l.Global {
			// Positions west of the grid sit just below 360; map them back
			// to negative offsets so they clamp to the first column.
			span := l.LonInterval * float64(l.LonCount-1)
			if rel > span+(360-span)/2 {
				rel -= 360
			}
			fx = clamp(rel/l.LonInterval, 0, float64(l.LonCount-1))
		} else {
			fx = rel / l.LonInterval
			if fx >= float64(l.LonCount) {
				fx -= float64(l.LonCount)
			}
		}
	}

	lat = clamp(lat, -90, 90)
	if l.LatInterval > 0 {
		fy = clamp((lat-l.LatMin)/l.LatInterval, 0, float64(l.LatCount-1))
	}

	if l.LevInterval > 0 {
		level = int(math.Round((lev - l.LevMin) / l.LevInterval))
		level = min(max(level, 0), l.LevCount-1)
	}
	return fx, fy, level
}

// TexCoord returns the normalized texture coordinate of a position:
// s = lonIndex/LonCount, t = (level*LatCount + latIndex)/(LatCount*LevCount).
func (l Layout) TexCoord(lon, lat, lev float64) (s, t float64) {
	fx, fy, level := l.Indices(lon, lat, lev)
	s = fx / float64(l.LonCount)
	t = (float64(level*l.LatCount) + fy) / float64(l.LatCount*l.LevCount)
	return s, t
}

// Texel returns the nearest texel (rounded index) for a texture coordinate.
func (l Layout) Texel(s, t float64) (col, row int) {
	col = l.column(int(math.Round(s * float64(l.LonCount))))
	row = int(math.Round(t * float64(l.LatCount*l.LevCount)))
	row = min(max(row, 0), l.LatCount*l.LevCount-1)
	return col, row
}

// column wraps (global) or clamps a longitude index.
func (l Layout) column(i int) int {
	if l.Global {
		i %= l.LonCount
		if i < 0 {
			i += l.LonCount
		}
		return i
	}
	return min(max(i, 0), l.LonCount-1)
}

// Bilinear interpolates one component at a position. fetch reads the raw
// value at a texel. The four longitude/latitude neighbours at the rounded
// level are blended by the fractional offset; levels are not interpolated.
func (l Layout) Bilinear(lon, lat, lev float64, fetch func(col, row int) float64) float64 {
	fx, fy, level := l.Indices(lon, lat, lev)

	x0 := math.Floor(fx)
	y0 := math.Floor(fy)
	ax := fx - x0
	ay := fy - y0

	c0 := l.column(int(x0))
	c1 := l.column(int(x0) + 1)
	base := level * l.LatCount
	r0 := base + int(y0)
	r1 := base + min(int(y0)+1, l.LatCount-1)

	v00 := fetch(c0, r0)
	v10 := fetch(c1, r0)
	v01 := fetch(c0, r1)
	v11 := fetch(c1, r1)

	top := v00 + (v10-v00)*ax
	bottom := v01 + (v11-v01)*ax
	return top + (bottom-top)*ay
}

// Sample is a CPU point query result.
type Sample struct {
	U, V      float64
	Speed     float64
	Direction float64 // degrees clockwise from north the flow points toward
}

// Grid is an immutable, validated field snapshot with texture-ordered
// component data. Non-finite samples are stored as 0.
type Grid struct {
	Layout
	URange Range
	VRange Range

	u, v   []float32
	levels []float64
}

// NewGrid validates ds and builds a grid. With flipY the dataset is taken as
// stored north-to-south and rows are reordered so row 0 is the southern edge.
func NewGrid(ds *Dataset, flipY bool) (*Grid, error) {
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	g := &Grid{
		Layout: NewLayout(ds),
		URange: Range{Min: ds.U.Min, Max: ds.U.Max},
		VRange: Range{Min: ds.V.Min, Max: ds.V.Max},
	}
	g.u = toTexels(ds.U.Array, g.Layout, flipY)
	g.v = toTexels(ds.V.Array, g.Layout, flipY)

	g.levels = make([]float64, g.LevCount)
	for i := range g.levels {
		g.levels[i] = axisValue(ds.Lev, i, g.LevCount, g.LonCount*g.LatCount)
	}
	return g, nil
}

func toTexels(src []float64, l Layout, flipY bool) []float32 {
	out := make([]float32, len(src))
	for lev := 0; lev < l.LevCount; lev++ {
		for lat := 0; lat < l.LatCount; lat++ {
			srcRow := lat
			if flipY {
				srcRow = l.LatCount - 1 - lat
			}
			dst := (lev*l.LatCount + lat) * l.LonCount
			from := (lev*l.LatCount + srcRow) * l.LonCount
			for lon := 0; lon < l.LonCount; lon++ {
				v := src[from+lon]
				if finite(v) {
					out[dst+lon] = float32(v)
				}
			}
		}
	}
	return out
}

// axisValue returns the coordinate of sample i along an axis, honouring the
// three accepted array layouts. stride is the flat distance between
// consecutive samples of the axis in a per-sample array.
func axisValue(a Axis, i, count, stride int) float64 {
	switch {
	case len(a.Array) == count:
		return a.Array[i]
	case len(a.Array) > count:
		return a.Array[i*stride]
	case count > 1:
		return a.Min + float64(i)*(a.Max-a.Min)/float64(count-1)
	default:
		return a.Min
	}
}

// U returns the texture-ordered U component. The slice must not be modified.
func (g *Grid) U() []float32 { return g.u }

// V returns the texture-ordered V component. The slice must not be modified.
func (g *Grid) V() []float32 { return g.v }

// Levels returns the level coordinates.
func (g *Grid) Levels() []float64 {
	return append([]float64(nil), g.levels...)
}

// At samples the field on the CPU with the same interpolation the GPU passes
// use.
func (g *Grid) At(lon, lat, lev float64) Sample {
	w := g.LonCount
	u := g.Bilinear(lon, lat, lev, func(col, row int) float64 { return float64(g.u[row*w+col]) })
	v := g.Bilinear(lon, lat, lev, func(col, row int) float64 { return float64(g.v[row*w+col]) })

	dir := math.Atan2(u, v) * 180 / math.Pi
	if dir < 0 {
		dir += 360
	}
	return Sample{U: u, V: v, Speed: math.Hypot(u, v), Direction: dir}
}

func (g *Grid) String() string {
	return fmt.Sprintf("grid %dx%dx%d global=%t", g.LonCount, g.LatCount, g.LevCount, g.Global)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
