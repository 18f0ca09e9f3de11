// Package config provides configuration loading and access for the
// visualizer.
package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/currents/engine"
	"github.com/pthm-cable/currents/field"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all configuration parameters.
type Config struct {
	Engine    engine.Options  `yaml:"engine"`
	Screen    ScreenConfig    `yaml:"screen"`
	Camera    CameraConfig    `yaml:"camera"`
	Host      HostConfig      `yaml:"host"`
	Data      DataConfig      `yaml:"data"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// ScreenConfig holds display settings.
type ScreenConfig struct {
	Width     int `yaml:"width"`
	Height    int `yaml:"height"`
	TargetFPS int `yaml:"target_fps"`
}

// CameraConfig holds the initial orbit camera.
type CameraConfig struct {
	Lon      float64 `yaml:"lon"`      // degrees
	Lat      float64 `yaml:"lat"`      // degrees
	Distance float64 `yaml:"distance"` // metres above the ellipsoid
	FOV      float64 `yaml:"fov"`      // vertical, degrees
}

// HostConfig holds software host parameters.
type HostConfig struct {
	Workers        int `yaml:"workers"`          // 0 uses GOMAXPROCS
	MemoryBudgetMB int `yaml:"memory_budget_mb"` // 0 is unlimited
}

// DataConfig selects the dataset. A non-empty Path wins over Synthetic.
type DataConfig struct {
	Path      string              `yaml:"path"`
	Synthetic field.SyntheticSpec `yaml:"synthetic"`
}

// Dataset loads the configured dataset.
func (d DataConfig) Dataset() (*field.Dataset, error) {
	if d.Path != "" {
		return field.LoadFile(d.Path)
	}
	return field.Synthetic(d.Synthetic)
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow int    `yaml:"perf_window"` // ticks averaged by the perf collector
	LogEvery   int    `yaml:"log_every"`   // ticks between perf log lines, 0 disables
	OutputDir  string `yaml:"output_dir"`
}

// DerivedConfig holds values computed from the loaded configuration.
type DerivedConfig struct {
	MemoryBudget int64   // bytes
	Aspect       float64 // screen width / height
	FOVRadians   float64
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in the file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("engine section: %w", err)
	}
	if cfg.Screen.Width <= 0 || cfg.Screen.Height <= 0 {
		return nil, fmt.Errorf("screen: size %dx%d must be positive", cfg.Screen.Width, cfg.Screen.Height)
	}

	cfg.computeDerived()
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.MemoryBudget = int64(c.Host.MemoryBudgetMB) << 20
	c.Derived.Aspect = float64(c.Screen.Width) / float64(c.Screen.Height)
	c.Derived.FOVRadians = c.Camera.FOV * math.Pi / 180

	if c.Telemetry.PerfWindow <= 0 {
		c.Telemetry.PerfWindow = 60
	}
	if c.Data.Synthetic.Kind == "" {
		c.Data.Synthetic.Kind = field.Vortex
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
