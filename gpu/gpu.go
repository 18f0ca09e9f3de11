// Package gpu defines the contract between the field engine and the host
// that owns textures, framebuffers and pass execution.
//
// A host runs two kinds of passes. Fragment passes evaluate a program once
// per texel of the target framebuffer, like a full-screen quad. Geometry
// passes run a program once per instance; the program emits clip-space
// triangles which the host rasterizes with an optional LESS depth test.
package gpu

import (
	"fmt"

	"github.com/pthm-cable/currents/geo"
)

// Format is a texture storage format.
type Format uint8

const (
	// RGBA32F stores four float channels.
	RGBA32F Format = iota
	// R32F stores one float channel.
	R32F
	// RGBA8 stores four channels quantized to multiples of 1/255 in [0, 1].
	RGBA8
	// Depth32F stores one float depth channel.
	Depth32F
)

// Channels returns the number of values per texel.
func (f Format) Channels() int {
	switch f {
	case RGBA32F, RGBA8:
		return 4
	default:
		return 1
	}
}

// BytesPerTexel returns the storage cost of one texel.
func (f Format) BytesPerTexel() int {
	if f == RGBA8 {
		return 4
	}
	return 4 * f.Channels()
}

func (f Format) String() string {
	switch f {
	case RGBA32F:
		return "rgba32f"
	case R32F:
		return "r32f"
	case RGBA8:
		return "rgba8"
	case Depth32F:
		return "depth32f"
	default:
		return fmt.Sprintf("format(%d)", uint8(f))
	}
}

// Texel is one texel value. Single-channel formats use only the first
// component.
type Texel [4]float32

// Resource is anything a host allocates.
type Resource interface {
	ID() uint32
}

// Texture is a host-owned 2D texture.
type Texture interface {
	Resource
	Width() int
	Height() int
	Format() Format
}

// Framebuffer binds a colour texture and an optional depth texture of the
// same size as a render target.
type Framebuffer interface {
	Resource
	Color() Texture
	Depth() Texture
}

// Sampler gives programs read access to a bound texture. Fetch clamps
// coordinates to the edge.
type Sampler interface {
	Width() int
	Height() int
	Fetch(x, y int) Texel
}

// Nearest fetches the texel nearest to normalized coordinates (s, t).
func Nearest(s Sampler, u, v float64) Texel {
	x := int(u * float64(s.Width()))
	y := int(v * float64(s.Height()))
	return s.Fetch(x, y)
}

// Uniforms are the inputs of a pass: textures bound in order and named
// scalar/vector values.
type Uniforms struct {
	Textures []Texture
	Values   map[string]any
}

// Fragment identifies the texel a fragment program is evaluated for.
// S and T are the normalized coordinates of the texel centre.
type Fragment struct {
	X, Y int
	S, T float64
}

// FragmentOutput is written to the target framebuffer. Depth is written only
// when the framebuffer has a depth attachment.
type FragmentOutput struct {
	Color   Texel
	Depth   float32
	Discard bool
}

// FragmentFunc evaluates one fragment. It must be safe for concurrent use.
type FragmentFunc func(frag Fragment, tex []Sampler) FragmentOutput

// FragmentProgram is a compiled fragment stage. Prepare binds uniform values
// and returns the per-fragment function.
type FragmentProgram interface {
	Name() string
	Prepare(values map[string]any) (FragmentFunc, error)
}

// Vertex is a clip-space vertex with a colour.
type Vertex struct {
	Position geo.Vec4
	Color    Texel
}

// Triangle is three vertices in emission order.
type Triangle [3]Vertex

// GeometryFunc produces the triangles of one instance. It must be safe for
// concurrent use across instances.
type GeometryFunc func(instance int, tex []Sampler, emit func(Triangle))

// GeometryProgram is a compiled geometry stage.
type GeometryProgram interface {
	Name() string
	Prepare(values map[string]any) (GeometryFunc, error)
}

// DrawState configures rasterization of a geometry pass.
type DrawState struct {
	DepthTest  bool // LESS against the framebuffer depth attachment
	DepthWrite bool
}

// Host owns GPU resources and executes passes. Implementations must be safe
// for concurrent use.
type Host interface {
	CreateTexture(width, height int, format Format) (Texture, error)
	CreateFramebuffer(color, depth Texture) (Framebuffer, error)
	// Upload replaces the texture contents; data holds Channels() values
	// per texel, row-major.
	Upload(tex Texture, data []float32) error
	// Read returns a copy of the texture contents in Upload layout.
	Read(tex Texture) ([]float32, error)
	Clear(fb Framebuffer, color Texel, depth float32) error
	RunFragmentPass(fb Framebuffer, program FragmentProgram, uniforms Uniforms) error
	RunGeometryPass(fb Framebuffer, program GeometryProgram, instances int, uniforms Uniforms, state DrawState) error
	// TerrainDepthTexture is the scene depth, sized to the viewport, that
	// trails are tested against.
	TerrainDepthTexture() Texture
	ViewProjection() geo.Mat4
	Viewport() (width, height int)
	Release(resources ...Resource) error
}

// FailureListener is implemented by hosts that want to know when an engine
// gives up after repeated failures.
type FailureListener interface {
	EngineFailed(err error)
}
