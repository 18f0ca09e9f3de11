package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/engine"
	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/systems"
	"github.com/pthm-cable/currents/telemetry"
)

func newBenchCmd() *cobra.Command {
	var engines, frames int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "run several engines on one host and dataset concurrently",
		RunE: func(cmd *cobra.Command, args []string) error {
			if engines < 1 || frames < 1 {
				return fmt.Errorf("need at least one engine and one frame")
			}
			return bench(cmd.Context(), config.Cfg(), engines, frames)
		},
	}
	cmd.Flags().IntVar(&engines, "engines", 4, "number of concurrent engines")
	cmd.Flags().IntVar(&frames, "frames", 200, "frames per engine")
	return cmd
}

func bench(ctx context.Context, cfg *config.Config, engines, frames int) error {
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

	// One read-only upload serves every engine.
	grid, err := field.NewGrid(ds, cfg.Engine.FlipY)
	if err != nil {
		return fmt.Errorf("building grid: %w", err)
	}
	shared, err := systems.UploadField(host, grid)
	if err != nil {
		return fmt.Errorf("uploading field: %w", err)
	}
	defer shared.Release(host)

	perfs := make([]*telemetry.PerfCollector, engines)
	all := make([]*engine.Engine, engines)
	for i := range all {
		opts := cfg.Engine
		opts.Seed += int64(i)
		opts.StatsInterval = 0
		perfs[i] = telemetry.NewPerfCollector(frames)

		e, err := engine.New(host, ds, opts, engine.WithPerf(perfs[i]), engine.WithFieldTextures(shared))
		if err != nil {
			return err
		}
		defer e.Destroy()
		all[i] = e
	}

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()
	for _, e := range all {
		ch := make(chan engine.FrameState, frames)
		for f := 1; f <= frames; f++ {
			ch <- engine.FrameState{Frame: uint64(f), PixelSize: cam.PixelSize()}
		}
		close(ch)

		g.Go(func() error {
			return e.Run(gctx, ch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)

	for i, p := range perfs {
		s := p.Stats()
		slog.Info("engine", "index", i, "perf", s)
	}
	slog.Info("bench complete",
		"engines", engines,
		"frames", engines*frames,
		"elapsed_ms", elapsed.Milliseconds(),
		"frames_per_sec", float64(engines*frames)/elapsed.Seconds(),
		"memory_bytes", host.MemoryUsed(),
	)
	return nil
}
