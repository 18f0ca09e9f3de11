// Pass debug tool - runs the pipeline headless and writes every
// intermediate texture to a PNG file for inspection.
//
// Usage: go run ./cmd/passdebug -frames 60 -out debug/
package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/pthm-cable/currents/camera"
	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/engine"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/gpu/soft"
	"github.com/pthm-cable/currents/renderer"
)

func main() {
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	dataPath := flag.String("data", "", "Dataset file (.json or .csv)")
	outDir := flag.String("out", "passdebug", "Output directory")
	frames := flag.Int("frames", 60, "Frames to run before dumping")
	width := flag.Int("width", 512, "Render width")
	height := flag.Int("height", 512, "Render height")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataPath != "" {
		cfg.Data.Path = *dataPath
	}
	cfg.Screen.Width, cfg.Screen.Height = *width, *height

	files, err := dump(cfg, *frames, *outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pass debug failed: %v\n", err)
		os.Exit(1)
	}
	for _, f := range files {
		fmt.Printf("Wrote %s\n", f)
	}
}

// dump runs frames ticks and writes one PNG per pass texture into dir.
func dump(cfg *config.Config, frames int, dir string) ([]string, error) {
	ds, err := cfg.Data.Dataset()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	host := soft.New(cfg.Screen.Width, cfg.Screen.Height, soft.WithWorkers(cfg.Host.Workers))
	defer host.Close()

	cam := camera.New(cfg.Screen.Width, cfg.Screen.Height)
	cam.Lon, cam.Lat = cfg.Camera.Lon, cfg.Camera.Lat
	cam.Distance = cfg.Camera.Distance
	cam.FOV = cfg.Derived.FOVRadians
	host.SetViewProjection(cam.ViewProjection())
	if err := host.SetTerrainDepth(camera.TerrainDepth(cam.Globe())); err != nil {
		return nil, err
	}

	e, err := engine.New(host, ds, cfg.Engine)
	if err != nil {
		return nil, err
	}
	defer e.Destroy()
	if err := e.Start(); err != nil {
		return nil, err
	}
	for f := 1; f <= frames; f++ {
		if err := e.Tick(engine.FrameState{Frame: uint64(f), PixelSize: cam.PixelSize()}); err != nil {
			return nil, err
		}
	}

	tex, err := e.Textures()
	if err != nil {
		return nil, err
	}
	passes := []struct {
		name  string
		tex   gpu.Texture
		shade renderer.Shader
	}{
		{"positions", tex.Positions, shadePosition},
		{"speed", tex.Speed, renderer.ShadeChannel(3, 0, 1)},
		{"segments", tex.Segments, renderer.ShadeRGBA},
		{"trail", tex.Trail, renderer.ShadeRGBA},
		{"output", tex.Output, renderer.ShadeRGBA},
		{"terrain", host.TerrainDepthTexture(), renderer.ShadeRGBA},
	}

	var written []string
	for _, p := range passes {
		path := filepath.Join(dir, p.name+".png")
		if err := renderer.SavePNG(host, p.tex, p.shade, path); err != nil {
			return written, fmt.Errorf("%s: %w", p.name, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// shadePosition maps longitude to red and latitude to green; reseeded
// particles are blue.
func shadePosition(t gpu.Texel) color.NRGBA {
	c := color.NRGBA{
		R: uint8(float64(t[0]) / 360 * 255),
		G: uint8((float64(t[1]) + 90) / 180 * 255),
		A: 255,
	}
	if t[3] != 0 {
		c.B = 255
	}
	return c
}
