// Field viewer - interactive globe with live particle trails and sliders
// bound to the engine options.
//
// Usage: go run ./cmd/fieldview -config config.yaml -data wind.json
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"time"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"

	"github.com/pthm-cable/currents/camera"
	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/engine"
	"github.com/pthm-cable/currents/gpu/soft"
	"github.com/pthm-cable/currents/telemetry"
)

const panelWidth = 300

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	dataPath := flag.String("data", "", "Dataset file (.json or .csv)")
	scale := flag.Float64("scale", 0.5, "Render resolution relative to the window")
	flag.Parse()

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	ds, err := cfg.Data.Dataset()
	if err != nil {
		slog.Error("failed to load dataset", "error", err)
		os.Exit(1)
	}

	viewW, viewH := cfg.Screen.Width, cfg.Screen.Height
	renderW := max(1, int(float64(viewW)**scale))
	renderH := max(1, int(float64(viewH)**scale))

	rl.InitWindow(int32(viewW+panelWidth), int32(viewH), "Currents")
	defer rl.CloseWindow()
	rl.SetTargetFPS(int32(cfg.Screen.TargetFPS))

	host := soft.New(renderW, renderH, soft.WithWorkers(cfg.Host.Workers), soft.WithMemoryBudget(cfg.Derived.MemoryBudget))
	defer host.Close()

	cam := camera.New(renderW, renderH)
	cam.Lon, cam.Lat = cfg.Camera.Lon, cfg.Camera.Lat
	cam.Distance = cfg.Camera.Distance
	cam.FOV = cfg.Derived.FOVRadians

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	e, err := engine.New(host, ds, cfg.Engine, engine.WithPerf(perf))
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	defer e.Destroy()
	if err := e.Start(); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	img := rl.GenImageColor(renderW, renderH, rl.Black)
	texture := rl.LoadTextureFromImage(img)
	rl.UnloadImage(img)
	defer rl.UnloadTexture(texture)

	pixels := make([]color.RGBA, renderW*renderH)
	var globe []camera.GlobeSample
	cameraMoved := true
	opts := e.Options()
	var frame uint64

	for !rl.WindowShouldClose() {
		perf.RecordFrame()

		// Camera input, ignored over the panel
		mouse := rl.GetMousePosition()
		if mouse.X < float32(viewW) {
			if rl.IsMouseButtonDown(rl.MouseButtonLeft) {
				d := rl.GetMouseDelta()
				if d.X != 0 || d.Y != 0 {
					cam.Pan(float64(d.X)**scale, float64(d.Y)**scale)
					cameraMoved = true
				}
			}
			if wheel := rl.GetMouseWheelMove(); wheel != 0 {
				cam.Zoom(1 - 0.1*float64(wheel))
				cameraMoved = true
			}
		}
		if rl.IsKeyPressed(rl.KeySpace) {
			togglePause(e)
		}

		if cameraMoved {
			host.SetViewProjection(cam.ViewProjection())
			globe = cam.Globe()
			if err := host.SetTerrainDepth(camera.TerrainDepth(globe)); err != nil {
				slog.Error("terrain depth", "error", err)
			}
			// Screen-space trails are stale after a camera move.
			if err := e.Resize(renderW, renderH); err != nil {
				slog.Error("resetting trails", "error", err)
			}
			cameraMoved = false
		}

		frame++
		if err := e.Tick(engine.FrameState{Frame: frame, PixelSize: cam.PixelSize()}); err != nil {
			slog.Warn("tick", "error", err)
			if e.State() == engine.Destroyed {
				break
			}
		}

		trail, err := host.Read(e.Output())
		if err == nil {
			composeFrame(pixels, globe, trail)
			rl.UpdateTexture(texture, pixels)
		}

		rl.BeginDrawing()
		rl.ClearBackground(rl.Black)
		rl.DrawTexturePro(
			texture,
			rl.Rectangle{X: 0, Y: 0, Width: float32(renderW), Height: float32(renderH)},
			rl.Rectangle{X: 0, Y: 0, Width: float32(viewW), Height: float32(viewH)},
			rl.Vector2{X: 0, Y: 0},
			0,
			rl.White,
		)

		if next, changed := drawPanel(float32(viewW), opts, e, cam); changed {
			if err := e.SetOptions(next); err != nil {
				slog.Warn("rejected options", "error", err)
			} else {
				opts = next
			}
		}
		rl.EndDrawing()
	}
}

func togglePause(e *engine.Engine) {
	if e.Stats().Paused {
		e.Resume()
	} else {
		e.Pause()
	}
}

// slider draws a labelled slider and returns the new value.
func slider(x float32, y *float32, label, format string, value, lo, hi float32) float32 {
	rl.DrawText(label, int32(x), int32(*y), 14, rl.LightGray)
	*y += 18
	v := gui.SliderBar(
		rl.Rectangle{X: x, Y: *y, Width: panelWidth - 90, Height: 20},
		"", "",
		value, lo, hi,
	)
	rl.DrawText(fmt.Sprintf(format, v), int32(x+panelWidth-80), int32(*y+2), 16, rl.RayWhite)
	*y += 35
	return v
}

// drawPanel draws the control panel and returns the options edited by the
// user.
func drawPanel(x0 float32, opts engine.Options, e *engine.Engine, cam *camera.Camera) (engine.Options, bool) {
	x := x0 + 15
	y := float32(10)
	rl.DrawRectangle(int32(x0), 0, panelWidth, int32(rl.GetScreenHeight()), rl.Color{R: 30, G: 30, B: 36, A: 255})
	rl.DrawText("Trail Options", int32(x), int32(y), 20, rl.RayWhite)
	y += 35

	next := opts
	changed := false
	set := func(dst *float64, v float32) {
		if float64(v) != *dst {
			*dst = float64(v)
			changed = true
		}
	}
	set(&next.FadeOpacity, slider(x, &y, "Fade opacity", "%.3f", float32(opts.FadeOpacity), 0.5, 0.999))
	set(&next.LineWidth, slider(x, &y, "Line width (px)", "%.1f", float32(opts.LineWidth), 0.5, 8))
	set(&next.SpeedFactor, slider(x, &y, "Speed factor", "%.2f", float32(opts.SpeedFactor), 0.1, 5))
	set(&next.DropRate, slider(x, &y, "Drop rate", "%.4f", float32(opts.DropRate), 0, 0.05))
	set(&next.DropRateBump, slider(x, &y, "Drop rate bump", "%.3f", float32(opts.DropRateBump), 0, 0.1))

	// Count changes reseed every particle; only apply on release.
	count := int(slider(x, &y, "Particles", "%.0f", float32(opts.ParticleCount), 256, 65536))
	if count != opts.ParticleCount && !rl.IsMouseButtonDown(rl.MouseButtonLeft) {
		next.ParticleCount = count
		changed = true
	}

	stats := e.Stats()
	if gui.Button(rl.Rectangle{X: x, Y: y, Width: 120, Height: 30}, toggleText(stats.Paused, "Resume", "Pause")) {
		togglePause(e)
	}
	if gui.Button(rl.Rectangle{X: x + 130, Y: y, Width: 120, Height: 30}, "Defaults") {
		next = engine.DefaultOptions()
		next.TrailColor, next.TrailColors = opts.TrailColor, opts.TrailColors
		changed = true
	}
	y += 45

	perf := e.Perf().Stats()
	lines := []string{
		fmt.Sprintf("FPS: %.0f  tick: %s", perf.FPS, perf.AvgTickDuration.Round(time.Microsecond)),
		fmt.Sprintf("Frames: %d  skipped: %d", stats.Frames, stats.Skipped),
		fmt.Sprintf("Camera: %.1f, %.1f  %.0f km", cam.Lon, cam.Lat, cam.Distance/1000),
		fmt.Sprintf("Pixel size: %.0f m", cam.PixelSize()),
		"Drag to orbit, wheel to zoom, space to pause",
	}
	for _, l := range lines {
		rl.DrawText(l, int32(x), int32(y), 14, rl.Gray)
		y += 20
	}
	return next, changed
}

func toggleText(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
