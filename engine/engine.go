// Package engine drives the particle pipeline on a gpu.Host. One Engine
// owns a field snapshot, a particle population and the trail buffers, and
// advances them by one frame per Tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/renderer"
	"github.com/pthm-cable/currents/systems"
	"github.com/pthm-cable/currents/telemetry"
)

// State is the engine lifecycle state.
type State int32

const (
	Uninitialized State = iota
	Ready
	Running
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// FrameState is what the host hands the engine for one frame.
type FrameState struct {
	Frame uint64
	// PixelSize is the metres covered by one screen pixel at the view
	// centre. Zero keeps Options.PixelSize.
	PixelSize float64
}

// Stats is a snapshot of engine counters.
type Stats struct {
	State               State
	Paused              bool
	Particles           int
	Frames              uint64 // completed ticks
	Skipped             uint64 // failed ticks
	ConsecutiveFailures int
	Last                telemetry.FrameStats
}

// LogValue implements slog.LogValuer for structured logging.
func (s Stats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("state", s.State.String()),
		slog.Int("particles", s.Particles),
		slog.Uint64("frames", s.Frames),
		slog.Uint64("skipped", s.Skipped),
		slog.Int("consecutive_failures", s.ConsecutiveFailures),
	)
}

// Textures exposes the engine's intermediate textures for debugging.
type Textures struct {
	Positions gpu.Texture
	Speed     gpu.Texture
	Segments  gpu.Texture
	Trail     gpu.Texture
	Output    gpu.Texture
}

// Engine advances particles through a vector field and renders their trails.
// All methods are safe for concurrent use; ticks of one engine never
// overlap.
type Engine struct {
	mu sync.Mutex

	host  gpu.Host
	log   *slog.Logger
	opts  Options
	state State

	dataset  *field.Dataset
	grid     *field.Grid
	fieldTex systems.FieldTextures
	// sharedField marks field textures owned by the caller, never released
	// by the engine.
	sharedField bool
	particles   *systems.ParticleState
	trails      *renderer.TrailCompositor
	viewportW   int
	viewportH   int

	rng    *rand.Rand
	perf   *telemetry.PerfCollector
	onStat func(telemetry.FrameStats)

	paused   bool
	frames   uint64
	skipped  uint64
	failures int
	last     telemetry.FrameStats
}

// Setting customizes an Engine at construction.
type Setting func(*Engine)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Setting {
	return func(e *Engine) { e.log = l }
}

// WithPerf sets the performance collector fed by every tick.
func WithPerf(p *telemetry.PerfCollector) Setting {
	return func(e *Engine) { e.perf = p }
}

// WithStatsHandler registers fn to receive each statistics readback.
func WithStatsHandler(fn func(telemetry.FrameStats)) Setting {
	return func(e *Engine) { e.onStat = fn }
}

// WithFieldTextures makes the engine sample ft instead of uploading its own
// copy of the dataset. ft must hold the dataset passed to New, uploaded with
// the same flip_y, and must outlive the engine; the engine never releases
// it. A later SetFieldData or flip_y change switches to engine-owned
// textures.
func WithFieldTextures(ft systems.FieldTextures) Setting {
	return func(e *Engine) {
		e.fieldTex = ft
		e.sharedField = true
	}
}

// New validates the dataset and options, allocates every host resource and
// returns a Ready engine. On failure nothing stays allocated.
func New(host gpu.Host, ds *field.Dataset, opts Options, settings ...Setting) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	grid, err := buildGrid(ds, opts.FlipY)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		host:    host,
		log:     slog.Default(),
		opts:    opts,
		state:   Uninitialized,
		dataset: ds,
		grid:    grid,
		rng:     rand.New(rand.NewSource(opts.Seed)),
	}
	for _, s := range settings {
		s(e)
	}
	if e.perf == nil {
		e.perf = telemetry.NewPerfCollector(60)
	}

	if err := e.allocate(); err != nil {
		return nil, err
	}
	e.state = Ready
	e.log.Info("engine ready",
		"particles", opts.ParticleCount,
		"grid", grid.String(),
		"viewport_w", e.viewportW,
		"viewport_h", e.viewportH,
	)
	return e, nil
}

func buildGrid(ds *field.Dataset, flipY bool) (*field.Grid, error) {
	if ds == nil {
		return nil, &ConfigurationError{Wrapped: fmt.Errorf("%w: no dataset", field.ErrInvalidDataset)}
	}
	g, err := field.NewGrid(ds, flipY)
	if err != nil {
		return nil, &ConfigurationError{Wrapped: err}
	}
	return g, nil
}

// allocate creates the field textures, particle state and trail buffers.
func (e *Engine) allocate() (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(err, e.release())
		}
	}()

	if !e.sharedField {
		if e.fieldTex, err = systems.UploadField(e.host, e.grid); err != nil {
			return &ResourceError{Resource: "field textures", Wrapped: err}
		}
	}
	if e.particles, err = e.newParticles(e.opts); err != nil {
		return err
	}
	w, h := e.host.Viewport()
	if e.trails, err = renderer.NewTrailCompositor(e.host, w, h); err != nil {
		return &ResourceError{Resource: "trail buffers", Wrapped: err}
	}
	e.viewportW, e.viewportH = w, h
	return nil
}

func (e *Engine) newParticles(opts Options) (*systems.ParticleState, error) {
	seed := systems.SeedPositions(e.rng, opts.ParticleCount, opts.LonRange, opts.LatRange, e.grid.Levels())
	st, err := systems.NewParticleState(e.host, opts.ParticleCount, seed)
	if err != nil {
		return nil, &ResourceError{Resource: "particle state", Wrapped: err}
	}
	return st, nil
}

// release frees every host resource the engine holds.
func (e *Engine) release() error {
	var errs []error
	if e.trails != nil {
		errs = append(errs, e.trails.Release())
		e.trails = nil
	}
	if e.particles != nil {
		errs = append(errs, e.particles.Release())
		e.particles = nil
	}
	if !e.sharedField && (e.fieldTex.U != nil || e.fieldTex.V != nil) {
		errs = append(errs, e.fieldTex.Release(e.host))
	}
	e.fieldTex = systems.FieldTextures{}
	return errors.Join(errs...)
}

// Start attaches the tick loop. Starting a running engine is a no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Destroyed:
		return ErrDestroyed
	case Ready:
		e.state = Running
		e.log.Debug("engine running")
	}
	return nil
}

// Destroy releases every resource. It waits for an in-flight tick and is
// idempotent.
func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyLocked()
}

func (e *Engine) destroyLocked() error {
	if e.state == Destroyed {
		return nil
	}
	e.state = Destroyed
	err := e.release()
	e.log.Info("engine destroyed", "frames", e.frames, "skipped", e.skipped)
	return err
}

// Pause freezes the particles. Trails keep fading while paused.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
}

// Resume continues advecting particles.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Options returns the active options.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Grid returns the active field grid.
func (e *Engine) Grid() *field.Grid {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grid
}

// Perf returns the performance collector.
func (e *Engine) Perf() *telemetry.PerfCollector {
	return e.perf
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Stats{
		State:               e.state,
		Paused:              e.paused,
		Frames:              e.frames,
		Skipped:             e.skipped,
		ConsecutiveFailures: e.failures,
		Last:                e.last,
	}
	if e.particles != nil {
		s.Particles = e.particles.Count()
	}
	return s
}

// Output returns the final composite, or nil once destroyed.
func (e *Engine) Output() gpu.Texture {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.trails == nil {
		return nil
	}
	return e.trails.Output()
}

// Textures returns the intermediate textures, or ErrDestroyed.
func (e *Engine) Textures() (Textures, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return Textures{}, ErrDestroyed
	}
	return Textures{
		Positions: e.particles.Current(),
		Speed:     e.particles.Speed(),
		Segments:  e.trails.SegmentColor(),
		Trail:     e.trails.Trail(),
		Output:    e.trails.Output(),
	}, nil
}

// SetFieldData replaces the field snapshot. The new textures are built
// before the old ones are released, so a failure leaves the engine on the
// previous field.
func (e *Engine) SetFieldData(ds *field.Dataset) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return ErrDestroyed
	}
	return e.setField(ds, e.opts.FlipY)
}

func (e *Engine) setField(ds *field.Dataset, flipY bool) error {
	grid, tex, err := e.buildField(ds, flipY)
	if err != nil {
		return err
	}
	return e.swapField(ds, grid, tex)
}

// buildField validates ds and uploads it without touching the active field.
func (e *Engine) buildField(ds *field.Dataset, flipY bool) (*field.Grid, systems.FieldTextures, error) {
	grid, err := buildGrid(ds, flipY)
	if err != nil {
		return nil, systems.FieldTextures{}, err
	}
	tex, err := systems.UploadField(e.host, grid)
	if err != nil {
		return nil, systems.FieldTextures{}, &ResourceError{Resource: "field textures", Wrapped: err}
	}
	return grid, tex, nil
}

// swapField makes a built field active and releases the previous one unless
// it was shared.
func (e *Engine) swapField(ds *field.Dataset, grid *field.Grid, tex systems.FieldTextures) error {
	old, shared := e.fieldTex, e.sharedField
	e.dataset, e.grid, e.fieldTex, e.sharedField = ds, grid, tex, false
	e.log.Info("field data replaced", "grid", grid.String())
	if shared {
		return nil
	}
	return old.Release(e.host)
}

// SetOptions validates and applies a new option set. A particle count
// change reallocates and reseeds the particles; a flip_y change rebuilds
// the field textures. Everything is allocated before anything is replaced,
// so a failure leaves the previous options and resources active.
func (e *Engine) SetOptions(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return ErrDestroyed
	}

	prev := e.opts
	var st *systems.ParticleState
	if opts.ParticleCount != prev.ParticleCount {
		var err error
		if st, err = e.newParticles(opts); err != nil {
			return err
		}
	}

	if opts.FlipY != prev.FlipY {
		grid, tex, err := e.buildField(e.dataset, opts.FlipY)
		if err != nil {
			if st != nil {
				err = errors.Join(err, st.Release())
			}
			return err
		}
		if err := e.swapField(e.dataset, grid, tex); err != nil {
			e.log.Warn("releasing previous field", "error", err)
		}
	}

	e.opts = opts
	if st != nil {
		old := e.particles
		e.particles = st
		e.log.Info("particles reallocated", "from", prev.ParticleCount, "to", opts.ParticleCount)
		return old.Release()
	}
	return nil
}

// Resize reallocates the trail buffers at w x h. Trails restart empty.
func (e *Engine) Resize(w, h int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return ErrDestroyed
	}
	return e.resize(w, h)
}

func (e *Engine) resize(w, h int) error {
	trails, err := renderer.NewTrailCompositor(e.host, w, h)
	if err != nil {
		return &ResourceError{Resource: "trail buffers", Wrapped: err}
	}
	old := e.trails
	e.trails = trails
	e.log.Debug("trail buffers resized", "width", w, "height", h)
	return old.Release()
}
