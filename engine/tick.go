package engine

import (
	"errors"
	"fmt"

	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/renderer"
	"github.com/pthm-cable/currents/systems"
	"github.com/pthm-cable/currents/telemetry"
)

// Tick advances the engine by one frame. A failed pass skips the frame
// without rotating any buffer and returns a *TransientRenderError. After
// MaxConsecutiveFailures failed ticks in a row the engine destroys itself,
// notifies a host implementing gpu.FailureListener and returns an error
// wrapping ErrEscalated.
func (e *Engine) Tick(fs FrameState) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Destroyed:
		return ErrDestroyed
	case Running:
	default:
		return ErrNotRunning
	}

	e.perf.StartTick()
	pass, err := e.tick(fs)
	if err == nil {
		e.perf.EndTick()
		e.frames++
		e.failures = 0
		return nil
	}

	e.perf.AbortTick()
	e.skipped++
	e.failures++
	terr := &TransientRenderError{Frame: fs.Frame, Pass: pass, Wrapped: err}
	if e.failures < e.opts.MaxConsecutiveFailures {
		e.log.Warn("tick skipped",
			"frame", fs.Frame,
			"pass", pass,
			"consecutive", e.failures,
			"error", err,
		)
		return terr
	}

	escalated := fmt.Errorf("%w after %d attempts: %w", ErrEscalated, e.failures, terr)
	e.log.Error("engine escalated", "frame", fs.Frame, "error", escalated)
	if rerr := e.destroyLocked(); rerr != nil {
		e.log.Warn("release after escalation", "error", rerr)
	}
	if l, ok := e.host.(gpu.FailureListener); ok {
		l.EngineFailed(escalated)
	}
	return escalated
}

// tick runs the passes of one frame and returns the failing pass name.
func (e *Engine) tick(fs FrameState) (string, error) {
	if w, h := e.host.Viewport(); w != e.viewportW || h != e.viewportH {
		if err := e.resize(w, h); err != nil {
			return "resize", err
		}
		e.viewportW, e.viewportH = w, h
	}

	if !e.paused {
		pixelSize := fs.PixelSize
		if pixelSize <= 0 {
			pixelSize = e.opts.PixelSize
		}

		e.perf.StartPhase(telemetry.PhaseSpeed)
		if err := systems.RunSpeed(e.host, e.particles, e.fieldTex, systems.SpeedParams{
			Layout:      e.grid.Layout,
			URange:      e.grid.URange,
			VRange:      e.grid.VRange,
			SpeedFactor: e.opts.SpeedFactor,
			PixelSize:   pixelSize,
			Step:        e.opts.RKStep,
		}); err != nil {
			return telemetry.PhaseSpeed, err
		}

		e.perf.StartPhase(telemetry.PhaseIntegrate)
		if err := systems.RunIntegrate(e.host, e.particles); err != nil {
			return telemetry.PhaseIntegrate, err
		}

		e.perf.StartPhase(telemetry.PhaseResample)
		if err := systems.RunResample(e.host, e.particles, systems.ResampleParams{
			DropRate:     e.opts.DropRate,
			DropRateBump: e.opts.DropRateBump,
			LonRange:     e.opts.LonRange,
			LatRange:     e.opts.LatRange,
			Coefficient:  e.rng.Float64(),
		}); err != nil {
			return telemetry.PhaseResample, err
		}
	}

	e.perf.StartPhase(telemetry.PhaseSegments)
	if err := e.trails.BeginFrame(); err != nil {
		return telemetry.PhaseSegments, err
	}
	if !e.paused {
		w, h := e.trails.Size()
		if err := renderer.DrawTrails(e.host, e.trails.Segments(), e.particles, renderer.TrailParams{
			ViewProjection: e.host.ViewProjection(),
			Width:          w,
			Height:         h,
			LineWidth:      e.opts.LineWidth,
			RenderHeight:   e.opts.RenderHeight,
			MiterThreshold: e.opts.MiterThreshold,
			Color:          e.opts.TrailColor.Texel(),
			Ramp:           e.opts.ramp(),
		}); err != nil {
			return telemetry.PhaseSegments, err
		}
	}

	e.perf.StartPhase(telemetry.PhaseTrails)
	if err := e.trails.Accumulate(e.opts.FadeOpacity); err != nil {
		return telemetry.PhaseTrails, err
	}

	e.perf.StartPhase(telemetry.PhaseComposite)
	if err := e.trails.Present(); err != nil {
		return telemetry.PhaseComposite, err
	}

	if !e.paused && e.opts.StatsInterval > 0 && fs.Frame%uint64(e.opts.StatsInterval) == 0 {
		e.perf.StartPhase(telemetry.PhaseStats)
		if err := e.readStats(fs.Frame); err != nil {
			return telemetry.PhaseStats, err
		}
	}

	if !e.paused {
		e.particles.Rotate()
	}
	e.trails.Swap()
	return "", nil
}

// readStats reads the particle textures back and summarizes them.
func (e *Engine) readStats(frame uint64) error {
	var slots [3][]float32
	var errs [4]error
	slots[0], errs[0] = e.host.Read(e.particles.Previous())
	slots[1], errs[1] = e.host.Read(e.particles.Current())
	slots[2], errs[2] = e.host.Read(e.particles.Next())
	speeds, err := e.host.Read(e.particles.Speed())
	errs[3] = err
	if err := errors.Join(errs[:]...); err != nil {
		return err
	}

	e.last = telemetry.ComputeFrameStats(frame, e.particles.Count(), slots, speeds)
	if e.onStat != nil {
		e.onStat(e.last)
	}
	return nil
}
