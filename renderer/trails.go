package renderer

import (
	"errors"
	"math"

	"github.com/pthm-cable/currents/gpu"
)

// Fade scales an 8-bit colour by f and truncates to the 8-bit level below:
// floor(f * 255 * c) / 255 per channel.
func Fade(c gpu.Texel, f float64) gpu.Texel {
	var out gpu.Texel
	for k, v := range c {
		level := math.Round(float64(v) * 255)
		out[k] = float32(math.Floor(f*level) / 255)
	}
	return out
}

// FramesToClear returns the number of frames, with no new segments, after
// which a fully opaque trail pixel has faded to zero alpha:
// ceil(log(1/255) / log(f)). It returns -1 when f >= 1 (never clears).
func FramesToClear(f float64) int {
	switch {
	case f <= 0:
		return 1
	case f >= 1:
		return -1
	}
	return int(math.Ceil(math.Log(1.0/255) / math.Log(f)))
}

// Composite blends this frame's segment with the faded previous trail.
// Each source is visible when its depth is in front of the terrain and its
// alpha is non-zero; the nearer visible one wins, ties going to the
// segment. With neither visible the pixel is cleared to colour 0, depth 1.
func Composite(seg gpu.Texel, segDepth float32, prev gpu.Texel, prevDepth float32, terrain float32, fade float64) (gpu.Texel, float32) {
	faded := Fade(prev, fade)
	segVisible := segDepth < terrain && seg[3] > 0
	trailVisible := prevDepth < terrain && faded[3] > 0

	switch {
	case segVisible && (!trailVisible || segDepth <= prevDepth):
		return seg, segDepth
	case trailVisible:
		return faded, prevDepth
	default:
		return gpu.Texel{}, 1
	}
}

// AccumulateProgram writes the new trail buffer.
// Textures: segment colour, segment depth, previous trail colour, previous
// trail depth, terrain depth.
type AccumulateProgram struct{}

func (AccumulateProgram) Name() string { return "trail-accumulate" }

func (AccumulateProgram) Prepare(values map[string]any) (gpu.FragmentFunc, error) {
	r := gpu.NewUniformReader("trail-accumulate", values)
	fade := r.Float("fadeOpacity")
	if err := r.Err(); err != nil {
		return nil, err
	}
	return func(frag gpu.Fragment, tex []gpu.Sampler) gpu.FragmentOutput {
		c, d := Composite(
			tex[0].Fetch(frag.X, frag.Y), tex[1].Fetch(frag.X, frag.Y)[0],
			tex[2].Fetch(frag.X, frag.Y), tex[3].Fetch(frag.X, frag.Y)[0],
			gpu.Nearest(tex[4], frag.S, frag.T)[0],
			fade,
		)
		return gpu.FragmentOutput{Color: c, Depth: d}
	}, nil
}

// PresentProgram writes the trail colour where the trail is in front of the
// terrain. Textures: trail colour, trail depth, terrain depth.
type PresentProgram struct{}

func (PresentProgram) Name() string { return "trail-present" }

func (PresentProgram) Prepare(map[string]any) (gpu.FragmentFunc, error) {
	return func(frag gpu.Fragment, tex []gpu.Sampler) gpu.FragmentOutput {
		d := tex[1].Fetch(frag.X, frag.Y)[0]
		if d < gpu.Nearest(tex[2], frag.S, frag.T)[0] {
			return gpu.FragmentOutput{Color: tex[0].Fetch(frag.X, frag.Y)}
		}
		return gpu.FragmentOutput{}
	}, nil
}

// target is a colour + optional depth render target.
type target struct {
	color, depth gpu.Texture
	fb           gpu.Framebuffer
}

func newTarget(host gpu.Host, w, h int, withDepth bool) (target, error) {
	var t target
	var err error
	if t.color, err = host.CreateTexture(w, h, gpu.RGBA8); err != nil {
		return t, err
	}
	if withDepth {
		if t.depth, err = host.CreateTexture(w, h, gpu.Depth32F); err != nil {
			return t, err
		}
	}
	t.fb, err = host.CreateFramebuffer(t.color, t.depth)
	return t, err
}

func (t target) resources() []gpu.Resource {
	var res []gpu.Resource
	if t.fb != nil {
		res = append(res, t.fb)
	}
	if t.color != nil {
		res = append(res, t.color)
	}
	if t.depth != nil {
		res = append(res, t.depth)
	}
	return res
}

// TrailCompositor owns the viewport-sized buffers: the per-frame segment
// target, two trail targets used as ping-pong A/B and the output target.
type TrailCompositor struct {
	host          gpu.Host
	width, height int

	segments target
	trails   [2]target
	write    int // trail target written this frame; the other is read
	output   target
}

// NewTrailCompositor allocates buffers of w x h and clears the trails.
func NewTrailCompositor(host gpu.Host, w, h int) (c *TrailCompositor, err error) {
	c = &TrailCompositor{host: host, width: w, height: h}
	defer func() {
		if err != nil {
			err = errors.Join(err, c.Release())
			c = nil
		}
	}()

	if c.segments, err = newTarget(host, w, h, true); err != nil {
		return c, err
	}
	for i := range c.trails {
		if c.trails[i], err = newTarget(host, w, h, true); err != nil {
			return c, err
		}
		if err = host.Clear(c.trails[i].fb, gpu.Texel{}, 1); err != nil {
			return c, err
		}
	}
	if c.output, err = newTarget(host, w, h, false); err != nil {
		return c, err
	}
	return c, nil
}

// Size returns the buffer size.
func (c *TrailCompositor) Size() (width, height int) { return c.width, c.height }

// Segments returns the target the ribbons of this frame are drawn into.
func (c *TrailCompositor) Segments() gpu.Framebuffer { return c.segments.fb }

// SegmentColor returns the colour of this frame's segments.
func (c *TrailCompositor) SegmentColor() gpu.Texture { return c.segments.color }

// BeginFrame clears the segment target.
func (c *TrailCompositor) BeginFrame() error {
	return c.host.Clear(c.segments.fb, gpu.Texel{}, 1)
}

// Accumulate fades the previous trail and merges this frame's segments into
// the write target.
func (c *TrailCompositor) Accumulate(fadeOpacity float64) error {
	read := c.trails[1-c.write]
	return c.host.RunFragmentPass(c.trails[c.write].fb, AccumulateProgram{}, gpu.Uniforms{
		Textures: []gpu.Texture{
			c.segments.color, c.segments.depth,
			read.color, read.depth,
			c.host.TerrainDepthTexture(),
		},
		Values: map[string]any{"fadeOpacity": fadeOpacity},
	})
}

// Present composites the freshly written trail over the terrain into the
// output target.
func (c *TrailCompositor) Present() error {
	written := c.trails[c.write]
	return c.host.RunFragmentPass(c.output.fb, PresentProgram{}, gpu.Uniforms{
		Textures: []gpu.Texture{written.color, written.depth, c.host.TerrainDepthTexture()},
	})
}

// Swap exchanges the read and write trail targets.
func (c *TrailCompositor) Swap() {
	c.write = 1 - c.write
}

// Trail returns the most recently completed trail colour.
func (c *TrailCompositor) Trail() gpu.Texture {
	return c.trails[1-c.write].color
}

// Output returns the final composite exposed to the host.
func (c *TrailCompositor) Output() gpu.Texture {
	return c.output.color
}

// Release frees every buffer.
func (c *TrailCompositor) Release() error {
	var res []gpu.Resource
	res = append(res, c.segments.resources()...)
	res = append(res, c.trails[0].resources()...)
	res = append(res, c.trails[1].resources()...)
	res = append(res, c.output.resources()...)
	c.segments, c.trails, c.output = target{}, [2]target{}, target{}
	return c.host.Release(res...)
}
