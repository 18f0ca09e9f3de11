package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/gpu/soft"
	"github.com/pthm-cable/currents/systems"
	"github.com/pthm-cable/currents/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHost(t *testing.T, opts ...soft.Option) *soft.Host {
	t.Helper()
	opts = append([]soft.Option{soft.WithLogger(quietLogger())}, opts...)
	h := soft.New(32, 32, opts...)
	t.Cleanup(h.Close)
	return h
}

// eastward is a 2x2x1 grid with U=1 and V=0 everywhere.
func eastward() *field.Dataset {
	return &field.Dataset{
		Dimension: field.Dimension{Lon: 2, Lat: 2, Lev: 1},
		Lon:       field.Axis{Min: 0, Max: 10},
		Lat:       field.Axis{Min: 0, Max: 10},
		U:         field.Component{Array: []float64{1, 1, 1, 1}, Min: 1, Max: 1},
		V:         field.Component{Array: []float64{0, 0, 0, 0}, Min: 0, Max: 0},
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.ParticleCount = 64
	o.LonRange = field.Range{Min: 2, Max: 8}
	o.LatRange = field.Range{Min: 2, Max: 8}
	o.StatsInterval = 0
	return o
}

func newEngine(t *testing.T, h gpu.Host, opts Options, settings ...Setting) *Engine {
	t.Helper()
	settings = append([]Setting{WithLogger(quietLogger())}, settings...)
	e, err := New(h, eastward(), opts, settings...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Destroy() })
	return e
}

func TestLifecycle(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())

	if e.State() != Ready {
		t.Fatalf("expected ready, got %s", e.State())
	}
	if err := e.Tick(FrameState{Frame: 1}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning before Start, got %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Errorf("second Start: %v", err)
	}
	if e.State() != Running {
		t.Fatalf("expected running, got %s", e.State())
	}
	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if e.Output() == nil {
		t.Error("expected an output texture")
	}

	if err := e.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := e.Destroy(); err != nil {
		t.Errorf("second Destroy: %v", err)
	}
	if e.State() != Destroyed {
		t.Errorf("expected destroyed, got %s", e.State())
	}
	if err := e.Tick(FrameState{Frame: 2}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	if err := e.Start(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed from Start, got %v", err)
	}
	if err := e.SetFieldData(eastward()); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed from SetFieldData, got %v", err)
	}
	if e.Output() != nil {
		t.Error("expected no output after Destroy")
	}
	if used := h.MemoryUsed(); used != 0 {
		t.Errorf("expected all memory released, %d bytes in use", used)
	}
}

func TestTickMovesEastward(t *testing.T) {
	h := newHost(t)
	opts := testOptions()
	opts.ParticleCount = 1
	opts.LonRange = field.Range{}
	opts.LatRange = field.Range{}
	opts.DropRate = 0
	opts.DropRateBump = 0
	opts.PixelSize = 1
	e := newEngine(t, h, opts)
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	tex, err := e.Textures()
	if err != nil {
		t.Fatal(err)
	}
	pos, err := h.Read(tex.Positions)
	if err != nil {
		t.Fatal(err)
	}
	if pos[0] <= 0 {
		t.Errorf("expected longitude to increase from 0, got %v", pos[0])
	}
	if pos[1] != 0 {
		t.Errorf("expected latitude to stay 0, got %v", pos[1])
	}
	if pos[3] != 0 {
		t.Errorf("expected an advected particle, got isRandom=%v", pos[3])
	}
}

func TestTickUsesFramePixelSize(t *testing.T) {
	run := func(pixelSize float64) float32 {
		h := newHost(t)
		opts := testOptions()
		opts.ParticleCount = 1
		opts.LonRange = field.Range{Min: 5, Max: 5}
		opts.LatRange = field.Range{Min: 5, Max: 5}
		opts.DropRate = 0
		opts.DropRateBump = 0
		e := newEngine(t, h, opts)
		e.Start()
		if err := e.Tick(FrameState{Frame: 1, PixelSize: pixelSize}); err != nil {
			t.Fatalf("Tick: %v", err)
		}
		tex, _ := e.Textures()
		pos, _ := h.Read(tex.Positions)
		return pos[0] - 5
	}

	small, large := run(10), run(1000)
	if !(large > small && small > 0) {
		t.Errorf("expected displacement to grow with pixel size, got %v and %v", small, large)
	}
}

func TestNewRejectsInvalidDataset(t *testing.T) {
	h := newHost(t)
	tests := []struct {
		name string
		ds   *field.Dataset
	}{
		{"nil", nil},
		{"short u", func() *field.Dataset {
			ds := eastward()
			ds.U.Array = ds.U.Array[:3]
			return ds
		}()},
		{"bad axis length", func() *field.Dataset {
			ds := eastward()
			ds.Lon.Array = []float64{0, 5, 10}
			return ds
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(h, tt.ds, testOptions(), WithLogger(quietLogger()))
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if !errors.Is(err, field.ErrInvalidDataset) {
				t.Errorf("expected ErrInvalidDataset, got %v", err)
			}
		})
	}
	if used := h.MemoryUsed(); used != 0 {
		t.Errorf("expected nothing allocated, %d bytes in use", used)
	}
}

func TestNewResourceFailureReleasesEverything(t *testing.T) {
	h := newHost(t, soft.WithMemoryBudget(1000))
	opts := testOptions()
	opts.ParticleCount = 1024

	_, err := New(h, eastward(), opts, WithLogger(quietLogger()))
	var rerr *ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResourceError, got %v", err)
	}
	if rerr.Resource != "particle state" {
		t.Errorf("expected particle state to fail, got %q", rerr.Resource)
	}
	if !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Errorf("expected ErrOutOfMemory, got %v", err)
	}
	if used := h.MemoryUsed(); used != 0 {
		t.Errorf("expected nothing allocated, %d bytes in use", used)
	}
}

func TestContextLossSkipsTick(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())
	e.Start()

	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatal(err)
	}
	tex, _ := e.Textures()
	before, _ := h.Read(tex.Positions)

	h.LoseContext()
	err := e.Tick(FrameState{Frame: 2})
	var terr *TransientRenderError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransientRenderError, got %v", err)
	}
	if !errors.Is(err, gpu.ErrContextLost) {
		t.Errorf("expected ErrContextLost, got %v", err)
	}
	if terr.Frame != 2 {
		t.Errorf("expected frame 2, got %d", terr.Frame)
	}
	if e.State() != Running {
		t.Errorf("expected engine to keep running, got %s", e.State())
	}
	h.RestoreContext()

	// Nothing rotated: the current slot is the same texture with the same data.
	after, _ := e.Textures()
	if after.Positions != tex.Positions {
		t.Error("expected particle slots not to rotate on a failed tick")
	}
	data, _ := h.Read(after.Positions)
	for i := range data {
		if data[i] != before[i] {
			t.Fatalf("expected unchanged positions, value %d went %v -> %v", i, before[i], data[i])
		}
	}

	if err := e.Tick(FrameState{Frame: 3}); err != nil {
		t.Fatalf("tick after restore: %v", err)
	}
	s := e.Stats()
	if s.Frames != 2 || s.Skipped != 1 || s.ConsecutiveFailures != 0 {
		t.Errorf("unexpected stats %+v", s)
	}
	if e.Perf().Stats().FailedTicks != 1 {
		t.Errorf("expected one failed tick in perf, got %d", e.Perf().Stats().FailedTicks)
	}
}

func TestEscalationDestroysAndNotifies(t *testing.T) {
	h := newHost(t)
	opts := testOptions()
	opts.MaxConsecutiveFailures = 3
	e := newEngine(t, h, opts)
	e.Start()

	h.LoseContext()
	for frame := uint64(1); frame < 3; frame++ {
		if err := e.Tick(FrameState{Frame: frame}); errors.Is(err, ErrEscalated) || err == nil {
			t.Fatalf("frame %d: expected a transient error, got %v", frame, err)
		}
	}
	err := e.Tick(FrameState{Frame: 3})
	if !errors.Is(err, ErrEscalated) {
		t.Fatalf("expected ErrEscalated, got %v", err)
	}
	if !errors.Is(err, gpu.ErrContextLost) {
		t.Errorf("expected the cause to be kept, got %v", err)
	}
	if e.State() != Destroyed {
		t.Errorf("expected destroyed, got %s", e.State())
	}
	if n := len(h.Failures()); n != 1 {
		t.Errorf("expected one host notification, got %d", n)
	}
	if used := h.MemoryUsed(); used != 0 {
		t.Errorf("expected resources released, %d bytes in use", used)
	}
	if err := e.Tick(FrameState{Frame: 4}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
}

func TestFailureCountResetsOnSuccess(t *testing.T) {
	h := newHost(t)
	opts := testOptions()
	opts.MaxConsecutiveFailures = 2
	e := newEngine(t, h, opts)
	e.Start()

	for frame := uint64(1); frame <= 6; frame++ {
		if frame%2 == 1 {
			h.LoseContext()
		} else {
			h.RestoreContext()
		}
		err := e.Tick(FrameState{Frame: frame})
		if errors.Is(err, ErrEscalated) {
			t.Fatalf("frame %d: unexpected escalation", frame)
		}
	}
	if e.State() != Running {
		t.Errorf("expected running, got %s", e.State())
	}
}

func TestSetFieldData(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())
	e.Start()
	used := h.MemoryUsed()

	bad := eastward()
	bad.Dimension.Lev = 2
	err := e.SetFieldData(bad)
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) || !errors.Is(err, field.ErrInvalidDataset) {
		t.Fatalf("expected ConfigurationError wrapping ErrInvalidDataset, got %v", err)
	}

	westward := eastward()
	westward.U = field.Component{Array: []float64{-1, -1, -1, -1}, Min: -1, Max: -1}
	if err := e.SetFieldData(westward); err != nil {
		t.Fatalf("SetFieldData: %v", err)
	}
	if h.MemoryUsed() != used {
		t.Errorf("expected old field textures released, memory %d -> %d", used, h.MemoryUsed())
	}
	if e.Grid().URange.Min != -1 {
		t.Errorf("expected the new grid, got U range %+v", e.Grid().URange)
	}
	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestSetOptions(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())
	e.Start()

	opts := e.Options()
	opts.FadeOpacity = 2
	err := e.SetOptions(opts)
	var oerr *OptionError
	if !errors.As(err, &oerr) || oerr.Field != "fade_opacity" {
		t.Fatalf("expected fade_opacity OptionError, got %v", err)
	}

	opts = e.Options()
	opts.ParticleCount = 9
	if err := e.SetOptions(opts); err != nil {
		t.Fatalf("SetOptions: %v", err)
	}
	if got := e.Stats().Particles; got != 9 {
		t.Errorf("expected 9 particles, got %d", got)
	}
	tex, _ := e.Textures()
	if tex.Positions.Width() != 3 || tex.Positions.Height() != 3 {
		t.Errorf("expected 3x3 particle textures, got %dx%d", tex.Positions.Width(), tex.Positions.Height())
	}

	opts.FlipY = true
	if err := e.SetOptions(opts); err != nil {
		t.Fatalf("SetOptions flip: %v", err)
	}
	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

// banded has U=1 along its southern row and U=5 along its northern row, so a
// flipped grid reads 5 in the south.
func banded() *field.Dataset {
	return &field.Dataset{
		Dimension: field.Dimension{Lon: 2, Lat: 2, Lev: 1},
		Lon:       field.Axis{Min: 0, Max: 10},
		Lat:       field.Axis{Min: 0, Max: 10},
		U:         field.Component{Array: []float64{1, 1, 5, 5}, Min: 1, Max: 5},
		V:         field.Component{Array: []float64{0, 0, 0, 0}, Min: 0, Max: 0},
	}
}

func TestSetOptionsFailureChangesNothing(t *testing.T) {
	opts := testOptions()

	sizing := newHost(t)
	sized, err := New(sizing, banded(), opts, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	used := sizing.MemoryUsed()
	sized.Destroy()

	// Room for a flipped field upload but not for a larger population.
	h := newHost(t, soft.WithMemoryBudget(used+32))
	e, err := New(h, banded(), opts, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Destroy() })
	e.Start()
	grid := e.Grid()

	next := opts
	next.FlipY = true
	next.ParticleCount = 100000
	err = e.SetOptions(next)
	var rerr *ResourceError
	if !errors.As(err, &rerr) || !errors.Is(err, gpu.ErrOutOfMemory) {
		t.Fatalf("expected out of memory ResourceError, got %v", err)
	}

	if e.Options().FlipY || e.Options().ParticleCount != opts.ParticleCount {
		t.Errorf("expected previous options, got flip_y=%v particle_count=%d", e.Options().FlipY, e.Options().ParticleCount)
	}
	if e.Grid() != grid {
		t.Error("expected the previous grid to stay active")
	}
	if got := e.Grid().At(5, 0, 0).U; got != 1 {
		t.Errorf("expected unflipped U=1 at the southern edge, got %v", got)
	}
	if got := h.MemoryUsed(); got != used {
		t.Errorf("expected %d bytes in use after the failed change, got %d", used, got)
	}
	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Errorf("Tick after failed SetOptions: %v", err)
	}
}

func TestSharedFieldTextures(t *testing.T) {
	h := newHost(t)
	grid, err := field.NewGrid(eastward(), false)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	shared, err := systems.UploadField(h, grid)
	if err != nil {
		t.Fatalf("UploadField: %v", err)
	}
	base := h.MemoryUsed()

	a := newEngine(t, h, testOptions(), WithFieldTextures(shared))
	b := newEngine(t, h, testOptions(), WithFieldTextures(shared))
	a.Start()
	b.Start()
	for frame := uint64(1); frame <= 3; frame++ {
		if err := a.Tick(FrameState{Frame: frame}); err != nil {
			t.Fatalf("a.Tick: %v", err)
		}
		if err := b.Tick(FrameState{Frame: frame}); err != nil {
			t.Fatalf("b.Tick: %v", err)
		}
	}

	a.Destroy()
	if err := b.Tick(FrameState{Frame: 4}); err != nil {
		t.Fatalf("Tick after the other engine was destroyed: %v", err)
	}

	// Replacing the field moves b onto its own textures; the shared ones stay.
	if err := b.SetFieldData(eastward()); err != nil {
		t.Fatalf("SetFieldData: %v", err)
	}
	b.Destroy()
	if got := h.MemoryUsed(); got != base {
		t.Errorf("expected only the shared upload (%d bytes) to remain, got %d", base, got)
	}
	if err := shared.Release(h); err != nil {
		t.Fatalf("Release shared: %v", err)
	}
	if got := h.MemoryUsed(); got != 0 {
		t.Errorf("expected nothing allocated, %d bytes in use", got)
	}
}

func TestPauseFreezesParticles(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())
	e.Start()
	e.Tick(FrameState{Frame: 1})

	e.Pause()
	tex, _ := e.Textures()
	before, _ := h.Read(tex.Positions)
	for frame := uint64(2); frame < 5; frame++ {
		if err := e.Tick(FrameState{Frame: frame}); err != nil {
			t.Fatalf("paused tick: %v", err)
		}
	}
	after, _ := e.Textures()
	data, _ := h.Read(after.Positions)
	for i := range data {
		if data[i] != before[i] {
			t.Fatalf("expected frozen particles, value %d went %v -> %v", i, before[i], data[i])
		}
	}
	if !e.Stats().Paused {
		t.Error("expected paused stats")
	}

	e.Resume()
	if err := e.Tick(FrameState{Frame: 5}); err != nil {
		t.Fatal(err)
	}
	moved, _ := e.Textures()
	if moved.Positions == after.Positions {
		t.Error("expected slots to rotate after Resume")
	}
}

func TestResize(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())
	e.Start()

	if err := e.Resize(16, 8); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if out := e.Output(); out.Width() != 16 || out.Height() != 8 {
		t.Errorf("expected 16x8 output, got %dx%d", out.Width(), out.Height())
	}

	h.Resize(20, 10)
	if err := e.Tick(FrameState{Frame: 1}); err != nil {
		t.Fatal(err)
	}
	if out := e.Output(); out.Width() != 20 || out.Height() != 10 {
		t.Errorf("expected the host viewport to be followed, got %dx%d", out.Width(), out.Height())
	}
}

func TestStatsHandler(t *testing.T) {
	h := newHost(t)
	opts := testOptions()
	opts.StatsInterval = 2
	opts.DropRate = 1

	var got []telemetry.FrameStats
	e := newEngine(t, h, opts, WithStatsHandler(func(s telemetry.FrameStats) {
		got = append(got, s)
	}))
	e.Start()
	for frame := uint64(1); frame <= 4; frame++ {
		if err := e.Tick(FrameState{Frame: frame}); err != nil {
			t.Fatal(err)
		}
	}

	if len(got) != 2 || got[0].Frame != 2 || got[1].Frame != 4 {
		t.Fatalf("expected stats at frames 2 and 4, got %+v", got)
	}
	if got[1].Reseeded != opts.ParticleCount || got[1].ReseedFraction != 1 {
		t.Errorf("expected full turnover, got %+v", got[1])
	}
	if e.Stats().Last.Frame != 4 {
		t.Errorf("expected the last readback to be kept, got frame %d", e.Stats().Last.Frame)
	}
}

func TestRun(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())

	frames := make(chan FrameState)
	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background(), frames) }()
	for frame := uint64(1); frame <= 3; frame++ {
		frames <- FrameState{Frame: frame}
	}
	close(frames)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := e.Stats().Frames; n != 3 {
		t.Errorf("expected 3 frames, got %d", n)
	}
}

func TestRunStopsOnContext(t *testing.T) {
	h := newHost(t)
	e := newEngine(t, h, testOptions())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := e.Run(ctx, make(chan FrameState))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRunReturnsEscalation(t *testing.T) {
	h := newHost(t)
	opts := testOptions()
	opts.MaxConsecutiveFailures = 2
	e := newEngine(t, h, opts)
	h.LoseContext()

	frames := make(chan FrameState, 4)
	for frame := uint64(1); frame <= 4; frame++ {
		frames <- FrameState{Frame: frame}
	}
	err := e.Run(context.Background(), frames)
	if !errors.Is(err, ErrEscalated) {
		t.Errorf("expected ErrEscalated, got %v", err)
	}
}
