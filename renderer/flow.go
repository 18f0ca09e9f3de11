// Package renderer turns particle positions into trail imagery: mitered
// ribbon geometry per particle and a depth-aware, fading accumulation of
// those ribbons across frames.
package renderer

import (
	"math"

	"github.com/pthm-cable/currents/geo"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/systems"
)

// DefaultMiterThreshold is the smallest cosine between the miter and the
// segment normal for which the interior vertex is mitered.
const DefaultMiterThreshold = 0.1

// minSegmentLength is the screen length below which a segment is treated
// as zero length.
const minSegmentLength = 1e-12

// TrailParams configures the ribbon pass.
type TrailParams struct {
	ViewProjection geo.Mat4
	Width, Height  int     // viewport in pixels
	LineWidth      float64 // pixels
	RenderHeight   float64 // metres above the ellipsoid
	MiterThreshold float64
	Color          gpu.Texel
	// Ramp, when set, colours each ribbon by its speed norm instead of
	// Color.
	Ramp []gpu.Texel
}

type vec2 struct{ x, y float64 }

func (a vec2) add(b vec2) vec2      { return vec2{a.x + b.x, a.y + b.y} }
func (a vec2) sub(b vec2) vec2      { return vec2{a.x - b.x, a.y - b.y} }
func (a vec2) scale(s float64) vec2 { return vec2{a.x * s, a.y * s} }
func (a vec2) dot(b vec2) float64   { return a.x*b.x + a.y*b.y }
func (a vec2) length() float64      { return math.Hypot(a.x, a.y) }
func (a vec2) perp() vec2           { return vec2{-a.y, a.x} }
func (a vec2) unit(l float64) vec2  { return vec2{a.x / l, a.y / l} }

// ribbon holds the projected points of one particle.
type ribbon struct {
	clip   [3]geo.Vec4 // previous, current, next
	aspect float64
}

// screen returns the aspect-corrected NDC position of point i.
func (r *ribbon) screen(i int) vec2 {
	c := r.clip[i]
	return vec2{c.X / c.W * r.aspect, c.Y / c.W}
}

// offset moves point i by an aspect-corrected NDC offset, scaled by w so
// the width stays constant in pixels.
func (r *ribbon) offset(i int, off vec2) geo.Vec4 {
	c := r.clip[i]
	return geo.Vec4{X: c.X + off.x/r.aspect*c.W, Y: c.Y + off.y*c.W, Z: c.Z, W: c.W}
}

// Ribbon builds the four triangles of a particle's two-segment ribbon.
// It returns false when the particle should not be drawn: a point behind
// the eye or a zero-length segment.
func Ribbon(clip [3]geo.Vec4, aspect, halfWidth, miterThreshold float64, color gpu.Texel) ([4]gpu.Triangle, bool) {
	var tris [4]gpu.Triangle
	for _, c := range clip {
		if !(c.W > 0) {
			return tris, false
		}
	}
	r := ribbon{clip: clip, aspect: aspect}
	a, b, c := r.screen(0), r.screen(1), r.screen(2)

	ab, bc := b.sub(a), c.sub(b)
	abLen, bcLen := ab.length(), bc.length()
	if !(abLen > minSegmentLength) || !(bcLen > minSegmentLength) {
		return tris, false
	}
	abDir, bcDir := ab.unit(abLen), bc.unit(bcLen)
	normalAB := abDir.perp()
	normalBC := bcDir.perp()

	// Interior vertex: miter along the average tangent, falling back to the
	// next segment's normal when the join is too sharp.
	interior := normalBC.scale(halfWidth)
	tangent := abDir.add(bcDir)
	if tl := tangent.length(); tl > minSegmentLength {
		miter := tangent.unit(tl).perp()
		if projection := miter.dot(normalAB); projection > miterThreshold {
			interior = miter.scale(halfWidth / projection)
		}
	}

	vert := func(i int, off vec2) gpu.Vertex {
		return gpu.Vertex{Position: r.offset(i, off), Color: color}
	}
	aMinus, aPlus := vert(0, normalAB.scale(-halfWidth)), vert(0, normalAB.scale(halfWidth))
	bMinus, bPlus := vert(1, interior.scale(-1)), vert(1, interior)
	cMinus, cPlus := vert(2, normalBC.scale(-halfWidth)), vert(2, normalBC.scale(halfWidth))

	tris[0] = gpu.Triangle{aMinus, aPlus, bPlus}
	tris[1] = gpu.Triangle{aMinus, bPlus, bMinus}
	tris[2] = gpu.Triangle{bMinus, bPlus, cPlus}
	tris[3] = gpu.Triangle{bMinus, cPlus, cMinus}
	return tris, true
}

// RampColor picks a colour from ramp at t in [0, 1], blending neighbours.
func RampColor(ramp []gpu.Texel, t float64) gpu.Texel {
	switch len(ramp) {
	case 0:
		return gpu.Texel{}
	case 1:
		return ramp[0]
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(ramp)-1)
	i := min(int(pos), len(ramp)-2)
	f := float32(pos - float64(i))

	var out gpu.Texel
	for k := range out {
		out[k] = ramp[i][k] + (ramp[i+1][k]-ramp[i][k])*f
	}
	return out
}

// TrailProgram emits one ribbon per particle instance.
// Textures: previous, current and next positions, speed.
type TrailProgram struct{}

func (TrailProgram) Name() string { return "trail-segments" }

func (TrailProgram) Prepare(values map[string]any) (gpu.GeometryFunc, error) {
	r := gpu.NewUniformReader("trail-segments", values)
	viewProj := r.Mat4("viewProjection")
	viewport := r.Vec2("viewport")
	lineWidth := r.Float("lineWidth")
	height := r.Float("renderHeight")
	threshold := r.Float("miterThreshold")
	color := r.Texel("color")
	ramp := r.Texels("colors")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if viewport[0] <= 0 || viewport[1] <= 0 {
		return nil, &gpu.UniformError{Program: "trail-segments", Name: "viewport", Want: "positive size", Got: viewport}
	}

	aspect := viewport[0] / viewport[1]
	// lineWidth/2 pixels in NDC, where one pixel is 2/height.
	halfWidth := lineWidth / viewport[1]

	return func(instance int, tex []gpu.Sampler, emit func(gpu.Triangle)) {
		w := tex[0].Width()
		x, y := instance%w, instance/w

		var clip [3]geo.Vec4
		for i := 0; i < 3; i++ {
			p := tex[i].Fetch(x, y)
			if p[3] != 0 {
				// Freshly reseeded: the segment would jump across the globe.
				return
			}
			clip[i] = viewProj.Project(geo.ToCartesian(float64(p[0]), float64(p[1]), height))
		}

		c := color
		if len(ramp) > 0 {
			c = RampColor(ramp, float64(tex[3].Fetch(x, y)[3]))
		}
		tris, ok := Ribbon(clip, aspect, halfWidth, threshold, c)
		if !ok {
			return
		}
		for _, tri := range tris {
			emit(tri)
		}
	}, nil
}

// DrawTrails renders the ribbons of every particle into target, which must
// have a depth attachment cleared to 1.
func DrawTrails(host gpu.Host, target gpu.Framebuffer, st *systems.ParticleState, p TrailParams) error {
	values := map[string]any{
		"viewProjection": p.ViewProjection,
		"viewport":       [2]float64{float64(p.Width), float64(p.Height)},
		"lineWidth":      p.LineWidth,
		"renderHeight":   p.RenderHeight,
		"miterThreshold": p.MiterThreshold,
		"color":          p.Color,
	}
	if len(p.Ramp) > 0 {
		values["colors"] = p.Ramp
	}
	return host.RunGeometryPass(target, TrailProgram{}, st.Count(), gpu.Uniforms{
		Textures: []gpu.Texture{st.Previous(), st.Current(), st.Next(), st.Speed()},
		Values:   values,
	}, gpu.DrawState{DepthTest: true, DepthWrite: true})
}
