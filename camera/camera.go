// Package camera provides an orbit camera over the globe. It produces the
// view-projection matrix, the pixel size used to scale particle speed, and
// a ray-cast globe depth that software hosts use as terrain depth.
package camera

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/currents/geo"
)

// maxLat keeps the eye off the polar axis, where the up vector degenerates.
const maxLat = 89.0

// Camera looks straight down at a geodetic point from above it.
type Camera struct {
	// Lon, Lat is the point under the camera, in degrees
	Lon, Lat float64

	// Distance is the eye height above the ellipsoid in metres
	Distance float64

	// FOV is the vertical field of view in radians
	FOV float64

	// Viewport dimensions (screen size)
	ViewportW, ViewportH int

	// Distance constraints
	MinDistance, MaxDistance float64
}

// New creates a camera over (0, 20) showing the whole globe.
func New(viewportW, viewportH int) *Camera {
	return &Camera{
		Lon:         0,
		Lat:         20,
		Distance:    1.6e7,
		FOV:         math.Pi / 4,
		ViewportW:   viewportW,
		ViewportH:   viewportH,
		MinDistance: 1e5,
		MaxDistance: 5e7,
	}
}

// Eye returns the ECEF eye position.
func (c *Camera) Eye() r3.Vec {
	return geo.ToCartesian(c.Lon, c.Lat, c.Distance)
}

// Aspect returns the viewport aspect ratio.
func (c *Camera) Aspect() float64 {
	if c.ViewportH == 0 {
		return 1
	}
	return float64(c.ViewportW) / float64(c.ViewportH)
}

// Target returns the ECEF surface point under the camera.
func (c *Camera) Target() r3.Vec {
	return geo.ToCartesian(c.Lon, c.Lat, 0)
}

// View returns the view matrix with north up.
func (c *Camera) View() geo.Mat4 {
	return geo.LookAt(c.Eye(), c.Target(), r3.Vec{Z: 1})
}

// Projection returns the perspective matrix. The clip range reaches past the
// far side of the globe.
func (c *Camera) Projection() geo.Mat4 {
	near := math.Max(c.Distance*0.01, 1)
	far := c.Distance + 2.5*geo.SemiMajorAxis
	return geo.Perspective(c.FOV, c.Aspect(), near, far)
}

// ViewProjection returns Projection * View.
func (c *Camera) ViewProjection() geo.Mat4 {
	return c.Projection().Mul(c.View())
}

// PixelSize returns the metres covered by one pixel at the surface point
// under the camera.
func (c *Camera) PixelSize() float64 {
	if c.ViewportH == 0 {
		return 0
	}
	return 2 * c.Distance * math.Tan(c.FOV/2) / float64(c.ViewportH)
}

// Pan moves the camera by a screen drag of (dx, dy) pixels.
func (c *Camera) Pan(dx, dy float64) {
	lonMeters := math.Max(111319.5*math.Cos(c.Lat*math.Pi/180), 1)
	c.Lon = geo.WrapLongitude(c.Lon - dx*c.PixelSize()/lonMeters)
	c.Lat = math.Max(-maxLat, math.Min(maxLat, c.Lat+dy*c.PixelSize()/110574))
}

// Zoom scales the eye distance by factor (< 1 moves closer).
func (c *Camera) Zoom(factor float64) {
	c.Distance = math.Max(c.MinDistance, math.Min(c.MaxDistance, c.Distance*factor))
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH int) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// GlobeSample is the ray-cast result for one pixel.
type GlobeSample struct {
	Hit      bool
	Depth    float32 // [0, 1], 1 on a miss
	Lon, Lat float64
	Shade    float64 // cosine between surface normal and view ray
}

// Globe ray-casts every pixel (row 0 at the top) against the WGS-84
// ellipsoid.
func (c *Camera) Globe() []GlobeSample {
	w, h := c.ViewportW, c.ViewportH
	out := make([]GlobeSample, w*h)
	vp := c.ViewProjection()
	inv, err := vp.Inverse()
	if err != nil {
		for i := range out {
			out[i].Depth = 1
		}
		return out
	}

	eye := c.Eye()
	for y := 0; y < h; y++ {
		ny := 1 - (float64(y)+0.5)/float64(h)*2
		for x := 0; x < w; x++ {
			nx := (float64(x)+0.5)/float64(w)*2 - 1
			out[y*w+x] = c.castRay(vp, inv, eye, nx, ny)
		}
	}
	return out
}

func unproject(inv geo.Mat4, nx, ny, nz float64) r3.Vec {
	p := inv.Transform(geo.Vec4{X: nx, Y: ny, Z: nz, W: 1})
	return r3.Vec{X: p.X / p.W, Y: p.Y / p.W, Z: p.Z / p.W}
}

func (c *Camera) castRay(vp, inv geo.Mat4, eye r3.Vec, nx, ny float64) GlobeSample {
	miss := GlobeSample{Depth: 1}
	dir := r3.Unit(r3.Sub(unproject(inv, nx, ny, 1), unproject(inv, nx, ny, -1)))

	t, ok := intersectEllipsoid(eye, dir)
	if !ok {
		return miss
	}
	hit := r3.Add(eye, r3.Scale(t, dir))
	clip := vp.Project(hit)
	if clip.W <= 0 {
		return miss
	}
	depth := (clip.Z/clip.W + 1) / 2
	if depth < 0 || depth > 1 {
		return miss
	}

	lon, lat, _ := geo.FromCartesian(hit)
	normal := geo.SurfaceNormal(lon, lat)
	return GlobeSample{
		Hit:   true,
		Depth: float32(depth),
		Lon:   lon,
		Lat:   lat,
		Shade: math.Max(0, -r3.Dot(normal, dir)),
	}
}

// intersectEllipsoid returns the nearest positive ray parameter at which
// origin + t*dir meets the ellipsoid surface.
func intersectEllipsoid(origin, dir r3.Vec) (float64, bool) {
	scale := r3.Vec{X: 1 / geo.SemiMajorAxis, Y: 1 / geo.SemiMajorAxis, Z: 1 / geo.SemiMinorAxis}
	o := r3.Vec{X: origin.X * scale.X, Y: origin.Y * scale.Y, Z: origin.Z * scale.Z}
	d := r3.Vec{X: dir.X * scale.X, Y: dir.Y * scale.Y, Z: dir.Z * scale.Z}

	a := r3.Dot(d, d)
	b := 2 * r3.Dot(o, d)
	cc := r3.Dot(o, o) - 1
	disc := b*b - 4*a*cc
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := (-b - sq) / (2 * a)
	if t <= 0 {
		t = (-b + sq) / (2 * a)
	}
	return t, t > 0
}

// TerrainDepth extracts the depth channel of a globe cast.
func TerrainDepth(samples []GlobeSample) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s.Depth
	}
	return out
}
