package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
	"github.com/pthm-cable/currents/renderer"
	"github.com/pthm-cable/currents/systems"
)

// MaxParticles bounds ParticleCount so the particle textures stay within
// common GPU texture limits (4096 x 4096).
const MaxParticles = 4096 * 4096

// Color is an RGBA colour that reads and writes as "#rrggbb" or
// "#rrggbbaa" in YAML.
type Color gpu.Texel

// White is the default trail colour.
var White = Color{1, 1, 1, 1}

// ParseColor parses a hex colour with an optional leading '#'.
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 && len(h) != 8 {
		return Color{}, fmt.Errorf("color %q: want #rrggbb or #rrggbbaa", s)
	}
	if len(h) == 6 {
		h += "ff"
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{
		float32(v>>24&0xff) / 255,
		float32(v>>16&0xff) / 255,
		float32(v>>8&0xff) / 255,
		float32(v&0xff) / 255,
	}, nil
}

func channel(f float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(f))) * 255))
}

// String formats the colour as #rrggbbaa.
func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", channel(c[0]), channel(c[1]), channel(c[2]), channel(c[3]))
}

// Texel returns the colour as a host texel.
func (c Color) Texel() gpu.Texel { return gpu.Texel(c) }

// MarshalYAML implements yaml.Marshaler.
func (c Color) MarshalYAML() (any, error) {
	return c.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Color) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseColor(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*c = parsed
	return nil
}

// Options configures an engine. Field names mirror the YAML engine section.
type Options struct {
	ParticleCount int     `yaml:"particle_count"`
	LineWidth     float64 `yaml:"line_width"`   // pixels
	FadeOpacity   float64 `yaml:"fade_opacity"` // per-frame trail retention in [0, 1)
	DropRate      float64 `yaml:"drop_rate"`
	DropRateBump  float64 `yaml:"drop_rate_bump"`
	SpeedFactor   float64 `yaml:"speed_factor"`
	PixelSize     float64 `yaml:"pixel_size"`    // metres per pixel when the frame carries none
	RenderHeight  float64 `yaml:"render_height"` // metres above the ellipsoid

	LonRange field.Range `yaml:"lon_range"`
	LatRange field.Range `yaml:"lat_range"`

	TrailColor  Color   `yaml:"trail_color"`
	TrailColors []Color `yaml:"trail_colors"` // speed ramp, overrides trail_color

	RKStep         float64 `yaml:"rk_step"`
	MiterThreshold float64 `yaml:"miter_threshold"`
	FlipY          bool    `yaml:"flip_y"`

	MaxConsecutiveFailures int   `yaml:"max_consecutive_failures"`
	Seed                   int64 `yaml:"seed"`
	StatsInterval          int   `yaml:"stats_interval"` // frames between statistics readbacks, 0 disables
}

// DefaultOptions returns the stock option set.
func DefaultOptions() Options {
	return Options{
		ParticleCount:          4096,
		LineWidth:              3,
		FadeOpacity:            0.96,
		DropRate:               0.003,
		DropRateBump:           0.01,
		SpeedFactor:            1,
		PixelSize:              1000,
		RenderHeight:           1000,
		LonRange:               field.Range{Min: 0, Max: 360},
		LatRange:               field.Range{Min: -90, Max: 90},
		TrailColor:             White,
		RKStep:                 systems.DefaultRKStep,
		MiterThreshold:         renderer.DefaultMiterThreshold,
		MaxConsecutiveFailures: 120,
		Seed:                   1,
		StatsInterval:          30,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every option. The error is a *ConfigurationError
// wrapping an *OptionError.
func (o Options) Validate() error {
	fail := func(name string, v any, reason string) error {
		return &ConfigurationError{Wrapped: &OptionError{Field: name, Value: v, Reason: reason}}
	}

	switch {
	case o.ParticleCount < 1 || o.ParticleCount > MaxParticles:
		return fail("particle_count", o.ParticleCount, fmt.Sprintf("must be in [1, %d]", MaxParticles))
	case !finite(o.LineWidth) || o.LineWidth <= 0:
		return fail("line_width", o.LineWidth, "must be positive")
	case !(o.FadeOpacity >= 0 && o.FadeOpacity < 1):
		return fail("fade_opacity", o.FadeOpacity, "must be in [0, 1)")
	case !(o.DropRate >= 0 && o.DropRate <= 1):
		return fail("drop_rate", o.DropRate, "must be in [0, 1]")
	case !finite(o.DropRateBump) || o.DropRateBump < 0:
		return fail("drop_rate_bump", o.DropRateBump, "must be non-negative")
	case !finite(o.SpeedFactor):
		return fail("speed_factor", o.SpeedFactor, "must be finite")
	case !finite(o.PixelSize) || o.PixelSize <= 0:
		return fail("pixel_size", o.PixelSize, "must be positive")
	case !finite(o.RenderHeight):
		return fail("render_height", o.RenderHeight, "must be finite")
	case !finite(o.LonRange.Min) || !finite(o.LonRange.Max) || o.LonRange.Min > o.LonRange.Max || o.LonRange.Width() > 360:
		return fail("lon_range", o.LonRange, "must be an ordered range spanning at most 360 degrees")
	case o.LatRange.Min < -90 || o.LatRange.Max > 90 || !(o.LatRange.Min <= o.LatRange.Max):
		return fail("lat_range", o.LatRange, "must be an ordered range within [-90, 90]")
	case !(o.RKStep > 0 && o.RKStep <= 1):
		return fail("rk_step", o.RKStep, "must be in (0, 1]")
	case !(o.MiterThreshold >= 0 && o.MiterThreshold <= 1):
		return fail("miter_threshold", o.MiterThreshold, "must be in [0, 1]")
	case o.MaxConsecutiveFailures < 1:
		return fail("max_consecutive_failures", o.MaxConsecutiveFailures, "must be at least 1")
	case o.StatsInterval < 0:
		return fail("stats_interval", o.StatsInterval, "must be non-negative")
	}
	return nil
}

// ramp returns the colour ramp as texels, or nil for a single colour.
func (o Options) ramp() []gpu.Texel {
	if len(o.TrailColors) == 0 {
		return nil
	}
	out := make([]gpu.Texel, len(o.TrailColors))
	for i, c := range o.TrailColors {
		out[i] = c.Texel()
	}
	return out
}
