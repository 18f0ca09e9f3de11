// Package soft is a CPU implementation of gpu.Host. Fragment passes run as
// data-parallel maps over row bands of the target on a persistent worker
// pool; geometry passes are rasterized in software. It backs headless runs,
// tests and the raylib viewer.
package soft

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pthm-cable/currents/geo"
	"github.com/pthm-cable/currents/gpu"
)

// Host is a software gpu.Host. It is safe for concurrent use; passes from
// different engines may run at the same time.
type Host struct {
	mu           sync.RWMutex
	textures     map[uint32]*texture
	framebuffers map[uint32]*framebuffer
	nextID       uint32
	used         int64
	budget       int64 // bytes, 0 = unlimited

	lost atomic.Bool

	width, height int
	terrain       *texture
	viewProj      geo.Mat4

	failures []error

	pool   *workerPool
	logger *slog.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithWorkers sets the worker count (default GOMAXPROCS).
func WithWorkers(n int) Option {
	return func(h *Host) { h.pool = newWorkerPool(n) }
}

// WithMemoryBudget caps the bytes of textures the host will hold.
func WithMemoryBudget(bytes int64) Option {
	return func(h *Host) { h.budget = bytes }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(h *Host) { h.logger = l }
}

// New creates a host with a viewport of width x height. The terrain depth is
// initialised to 1 (nothing occludes) and the view-projection to identity.
func New(width, height int, opts ...Option) *Host {
	h := &Host{
		textures:     make(map[uint32]*texture),
		framebuffers: make(map[uint32]*framebuffer),
		width:        width,
		height:       height,
		viewProj:     geo.Identity(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.pool == nil {
		h.pool = newWorkerPool(0)
	}
	h.pool.start()

	h.nextID++
	h.terrain = newTexture(h.nextID, width, height, gpu.Depth32F)
	h.terrain.fill(gpu.Texel{1})
	return h
}

// Close stops the worker pool. Passes issued afterwards run on the caller's
// goroutine.
func (h *Host) Close() {
	h.pool.stop()
}

// LoseContext simulates a lost device: every operation except Release fails
// with gpu.ErrContextLost until RestoreContext.
func (h *Host) LoseContext() {
	if !h.lost.Swap(true) {
		h.logger.Warn("gpu context lost")
	}
}

// RestoreContext ends a simulated context loss. Resources survive the loss.
func (h *Host) RestoreContext() {
	if h.lost.Swap(false) {
		h.logger.Info("gpu context restored")
	}
}

// SetViewProjection sets the matrix returned by ViewProjection.
func (h *Host) SetViewProjection(m geo.Mat4) {
	h.mu.Lock()
	h.viewProj = m
	h.mu.Unlock()
}

// SetTerrainDepth replaces the terrain depth with one value per viewport
// pixel, row 0 at the top.
func (h *Host) SetTerrainDepth(depth []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(depth) != len(h.terrain.data) {
		return fmt.Errorf("%w: terrain depth has %d values, viewport needs %d", gpu.ErrInvalidArgument, len(depth), len(h.terrain.data))
	}
	copy(h.terrain.data, depth)
	return nil
}

// Resize changes the viewport and resets the terrain depth to 1.
func (h *Host) Resize(width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.width, h.height = width, height
	h.terrain.width, h.terrain.height = width, height
	h.terrain.data = make([]float32, width*height)
	h.terrain.fill(gpu.Texel{1})
}

// MemoryUsed returns the bytes held by live textures.
func (h *Host) MemoryUsed() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.used
}

// EngineFailed records an escalated engine failure.
func (h *Host) EngineFailed(err error) {
	h.mu.Lock()
	h.failures = append(h.failures, err)
	h.mu.Unlock()
	h.logger.Error("engine failed", "error", err)
}

// Failures returns the errors reported through EngineFailed.
func (h *Host) Failures() []error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]error(nil), h.failures...)
}

// Viewport returns the viewport size.
func (h *Host) Viewport() (width, height int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.width, h.height
}

// ViewProjection returns the current camera matrix.
func (h *Host) ViewProjection() geo.Mat4 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.viewProj
}

// TerrainDepthTexture returns the scene depth texture.
func (h *Host) TerrainDepthTexture() gpu.Texture {
	return h.terrain
}

// CreateTexture allocates a zeroed texture.
func (h *Host) CreateTexture(width, height int, format gpu.Format) (gpu.Texture, error) {
	if h.lost.Load() {
		return nil, gpu.ErrContextLost
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: texture size %dx%d", gpu.ErrInvalidArgument, width, height)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	size := int64(width) * int64(height) * int64(format.BytesPerTexel())
	if h.budget > 0 && h.used+size > h.budget {
		return nil, fmt.Errorf("%w: %dx%d %s needs %d bytes, %d of %d in use",
			gpu.ErrOutOfMemory, width, height, format, size, h.used, h.budget)
	}

	h.nextID++
	t := newTexture(h.nextID, width, height, format)
	h.textures[t.id] = t
	h.used += size
	return t, nil
}

type framebuffer struct {
	id    uint32
	color *texture
	depth *texture
}

func (f *framebuffer) ID() uint32 { return f.id }

func (f *framebuffer) Color() gpu.Texture { return f.color }

func (f *framebuffer) Depth() gpu.Texture {
	if f.depth == nil {
		return nil
	}
	return f.depth
}

// CreateFramebuffer binds a colour texture and an optional depth texture.
func (h *Host) CreateFramebuffer(color, depth gpu.Texture) (gpu.Framebuffer, error) {
	if h.lost.Load() {
		return nil, gpu.ErrContextLost
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	c, err := h.lookupTexture(color)
	if err != nil {
		return nil, err
	}
	if c.format == gpu.Depth32F {
		return nil, fmt.Errorf("%w: colour attachment is a depth texture", gpu.ErrInvalidArgument)
	}
	fb := &framebuffer{color: c}
	if depth != nil {
		d, err := h.lookupTexture(depth)
		if err != nil {
			return nil, err
		}
		if d.format != gpu.Depth32F {
			return nil, fmt.Errorf("%w: depth attachment is %s", gpu.ErrInvalidArgument, d.format)
		}
		if d.width != c.width || d.height != c.height {
			return nil, fmt.Errorf("%w: depth %dx%d does not match colour %dx%d",
				gpu.ErrInvalidArgument, d.width, d.height, c.width, c.height)
		}
		fb.depth = d
	}

	h.nextID++
	fb.id = h.nextID
	h.framebuffers[fb.id] = fb
	return fb, nil
}

// Upload replaces a texture's contents.
func (h *Host) Upload(tex gpu.Texture, data []float32) error {
	if h.lost.Load() {
		return gpu.ErrContextLost
	}
	h.mu.RLock()
	t, err := h.lookupTexture(tex)
	h.mu.RUnlock()
	if err != nil {
		return err
	}
	if len(data) != len(t.data) {
		return fmt.Errorf("%w: upload of %d values into %dx%d %s", gpu.ErrInvalidArgument, len(data), t.width, t.height, t.format)
	}
	if t.format == gpu.RGBA8 {
		for i, v := range data {
			t.data[i] = quantize(v)
		}
		return nil
	}
	copy(t.data, data)
	return nil
}

// Read returns a copy of a texture's contents.
func (h *Host) Read(tex gpu.Texture) ([]float32, error) {
	if h.lost.Load() {
		return nil, gpu.ErrContextLost
	}
	h.mu.RLock()
	t, err := h.lookupTexture(tex)
	h.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return append([]float32(nil), t.data...), nil
}

// Clear fills the colour attachment and, if present, the depth attachment.
func (h *Host) Clear(fb gpu.Framebuffer, color gpu.Texel, depth float32) error {
	if h.lost.Load() {
		return gpu.ErrContextLost
	}
	h.mu.RLock()
	f, err := h.lookupFramebuffer(fb)
	h.mu.RUnlock()
	if err != nil {
		return err
	}
	f.color.fill(color)
	if f.depth != nil {
		f.depth.fill(gpu.Texel{depth})
	}
	return nil
}

// Release frees resources. Unknown resources are reported but do not stop
// the others from being released. Release works while the context is lost.
func (h *Host) Release(resources ...gpu.Resource) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, r := range resources {
		if r == nil {
			continue
		}
		switch v := r.(type) {
		case *texture:
			if h.textures[v.id] != v {
				errs = append(errs, fmt.Errorf("%w: texture %d", gpu.ErrUnknownResource, v.id))
				continue
			}
			delete(h.textures, v.id)
			h.used -= v.bytes()
		case *framebuffer:
			if h.framebuffers[v.id] != v {
				errs = append(errs, fmt.Errorf("%w: framebuffer %d", gpu.ErrUnknownResource, v.id))
				continue
			}
			delete(h.framebuffers, v.id)
		default:
			errs = append(errs, fmt.Errorf("%w: %T", gpu.ErrUnknownResource, r))
		}
	}
	return errors.Join(errs...)
}

// lookupTexture resolves a texture created by this host. The terrain texture
// is accepted. Callers hold h.mu.
func (h *Host) lookupTexture(tex gpu.Texture) (*texture, error) {
	t, ok := tex.(*texture)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: %T", gpu.ErrUnknownResource, tex)
	}
	if t == h.terrain {
		return t, nil
	}
	if h.textures[t.id] != t {
		return nil, fmt.Errorf("%w: texture %d", gpu.ErrUnknownResource, t.id)
	}
	return t, nil
}

func (h *Host) lookupFramebuffer(fb gpu.Framebuffer) (*framebuffer, error) {
	f, ok := fb.(*framebuffer)
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %T", gpu.ErrUnknownResource, fb)
	}
	if h.framebuffers[f.id] != f {
		return nil, fmt.Errorf("%w: framebuffer %d", gpu.ErrUnknownResource, f.id)
	}
	return f, nil
}

// bind resolves the pass inputs, rejecting any that alias the target.
func (h *Host) bind(fb gpu.Framebuffer, textures []gpu.Texture) (*framebuffer, []gpu.Sampler, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := h.lookupFramebuffer(fb)
	if err != nil {
		return nil, nil, err
	}
	samplers := make([]gpu.Sampler, len(textures))
	for i, tex := range textures {
		t, err := h.lookupTexture(tex)
		if err != nil {
			return nil, nil, fmt.Errorf("texture unit %d: %w", i, err)
		}
		if t == f.color || (f.depth != nil && t == f.depth) {
			return nil, nil, fmt.Errorf("texture unit %d: %w", i, gpu.ErrFeedbackLoop)
		}
		samplers[i] = t
	}
	return f, samplers, nil
}

// RunFragmentPass evaluates program once per texel of fb.
func (h *Host) RunFragmentPass(fb gpu.Framebuffer, program gpu.FragmentProgram, uniforms gpu.Uniforms) error {
	if h.lost.Load() {
		return gpu.ErrContextLost
	}
	f, samplers, err := h.bind(fb, uniforms.Textures)
	if err != nil {
		return fmt.Errorf("fragment pass %s: %w", program.Name(), err)
	}
	shade, err := program.Prepare(uniforms.Values)
	if err != nil {
		return fmt.Errorf("fragment pass %s: %w", program.Name(), err)
	}

	width, height := f.color.width, f.color.height
	h.pool.forEach(height, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			t := (float64(y) + 0.5) / float64(height)
			for x := 0; x < width; x++ {
				out := shade(gpu.Fragment{X: x, Y: y, S: (float64(x) + 0.5) / float64(width), T: t}, samplers)
				if out.Discard {
					continue
				}
				f.color.store(x, y, out.Color)
				if f.depth != nil {
					f.depth.data[y*width+x] = out.Depth
				}
			}
		}
	})
	return nil
}

// RunGeometryPass runs program for each instance and rasterizes the emitted
// triangles in instance order.
func (h *Host) RunGeometryPass(fb gpu.Framebuffer, program gpu.GeometryProgram, instances int, uniforms gpu.Uniforms, state gpu.DrawState) error {
	if h.lost.Load() {
		return gpu.ErrContextLost
	}
	f, samplers, err := h.bind(fb, uniforms.Textures)
	if err != nil {
		return fmt.Errorf("geometry pass %s: %w", program.Name(), err)
	}
	generate, err := program.Prepare(uniforms.Values)
	if err != nil {
		return fmt.Errorf("geometry pass %s: %w", program.Name(), err)
	}

	width, height := f.color.width, f.color.height
	ranges := split(instances, h.pool.numWorkers)
	batches := make([][]screenTriangle, len(ranges))
	h.pool.forEach(len(ranges), func(r0, r1 int) {
		for r := r0; r < r1; r++ {
			var tris []screenTriangle
			emit := func(tri gpu.Triangle) {
				if st, ok := toScreen(tri, width, height); ok {
					tris = append(tris, st)
				}
			}
			for i := ranges[r][0]; i < ranges[r][1]; i++ {
				generate(i, samplers, emit)
			}
			batches[r] = tris
		}
	})

	var tris []screenTriangle
	for _, b := range batches {
		tris = append(tris, b...)
	}
	if len(tris) == 0 {
		return nil
	}

	h.pool.forEach(height, func(y0, y1 int) {
		for i := range tris {
			rasterize(&tris[i], f, state, y0, y1)
		}
	})
	return nil
}
