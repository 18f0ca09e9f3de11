package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/engine"
	"github.com/pthm-cable/currents/renderer"
	"github.com/pthm-cable/currents/telemetry"
)

func newRunCmd() *cobra.Command {
	var (
		frames    int
		particles int
		seed      int64
		outputDir string
		pngPath   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the pipeline headless on the software host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Cfg()
			if cmd.Flags().Changed("particles") {
				cfg.Engine.ParticleCount = particles
			}
			if cmd.Flags().Changed("seed") {
				cfg.Engine.Seed = seed
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Telemetry.OutputDir = outputDir
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runHeadless(ctx, cfg, frames, pngPath)
		},
	}
	cmd.Flags().IntVar(&frames, "frames", 600, "number of frames to render")
	cmd.Flags().IntVar(&particles, "particles", 0, "particle count (overrides engine.particle_count)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed (overrides engine.seed)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for CSV logs and config snapshot")
	cmd.Flags().StringVar(&pngPath, "png", "", "write the final composite to this PNG file")
	return cmd
}

func runHeadless(ctx context.Context, cfg *config.Config, frames int, pngPath string) error {
	ds, err := cfg.Data.Dataset()
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}

	host := newHost(cfg)
	defer host.Close()
	cam, err := newCamera(cfg, host)
	if err != nil {
		return err
	}

	om, err := telemetry.NewOutputManager(cfg.Telemetry.OutputDir)
	if err != nil {
		return err
	}
	defer om.Close()
	if err := om.WriteConfig(cfg); err != nil {
		return err
	}

	perf := telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	e, err := engine.New(host, ds, cfg.Engine,
		engine.WithPerf(perf),
		engine.WithStatsHandler(func(s telemetry.FrameStats) {
			slog.Debug("frame", "stats", s)
			if err := om.WriteFrame(s); err != nil {
				slog.Warn("writing frame stats", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	defer e.Destroy()
	if err := e.Start(); err != nil {
		return err
	}

	slog.Info("starting headless run",
		"frames", frames,
		"particles", cfg.Engine.ParticleCount,
		"seed", cfg.Engine.Seed,
		"output_dir", om.Dir(),
	)

	for frame := uint64(1); frame <= uint64(frames); frame++ {
		if err := ctx.Err(); err != nil {
			slog.Info("run interrupted", "frame", frame)
			break
		}
		err := e.Tick(engine.FrameState{Frame: frame, PixelSize: cam.PixelSize()})
		if errors.Is(err, engine.ErrEscalated) {
			return err
		}

		if every := cfg.Telemetry.LogEvery; every > 0 && frame%uint64(every) == 0 {
			stats := perf.Stats()
			stats.LogStats(slog.Default())
			if err := om.WritePerf(stats, frame); err != nil {
				slog.Warn("writing perf stats", "error", err)
			}
		}
	}

	slog.Info("run complete", "stats", e.Stats())
	if pngPath != "" {
		if err := renderer.SavePNG(host, e.Output(), renderer.ShadeRGBA, pngPath); err != nil {
			return err
		}
		slog.Info("wrote composite", "path", pngPath)
	}
	return nil
}
