package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm-cable/currents/camera"
	"github.com/pthm-cable/currents/config"
	"github.com/pthm-cable/currents/gpu/soft"
)

var (
	configPath string
	dataPath   string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "currents",
		Short:         "vector-field particle advection and trail rendering",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Set up slog (JSON to stdout for structured logging)
			var level slog.Level
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return err
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			// Initialize config before anything else
			if err := config.Init(configPath); err != nil {
				return err
			}
			if dataPath != "" {
				config.Cfg().Data.Path = dataPath
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (empty = use defaults)")
	rootCmd.PersistentFlags().StringVar(&dataPath, "data", "", "dataset file (.json or .csv), overrides data.path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")

	rootCmd.AddCommand(newRunCmd(), newInspectCmd(), newFadeCmd(), newBenchCmd(), newSynthCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// newHost builds a software host sized to the configured screen.
func newHost(cfg *config.Config) *soft.Host {
	return soft.New(cfg.Screen.Width, cfg.Screen.Height,
		soft.WithWorkers(cfg.Host.Workers),
		soft.WithMemoryBudget(cfg.Derived.MemoryBudget),
	)
}

// newCamera builds the configured orbit camera and points the host at it.
func newCamera(cfg *config.Config, host *soft.Host) (*camera.Camera, error) {
	cam := camera.New(cfg.Screen.Width, cfg.Screen.Height)
	cam.Lon, cam.Lat = cfg.Camera.Lon, cfg.Camera.Lat
	cam.Distance = cfg.Camera.Distance
	cam.FOV = cfg.Derived.FOVRadians

	host.SetViewProjection(cam.ViewProjection())
	if err := host.SetTerrainDepth(camera.TerrainDepth(cam.Globe())); err != nil {
		return nil, err
	}
	return cam, nil
}
