package field

import (
	"fmt"
	"math"

	"github.com/ojrac/opensimplex-go"
)

// SyntheticKind selects the flow pattern of a generated dataset.
type SyntheticKind string

const (
	// Zonal is a west-to-east flow strongest at the equator.
	Zonal SyntheticKind = "zonal"
	// Vortex is a single cyclone centred on (180, 0).
	Vortex SyntheticKind = "vortex"
	// Noise is a divergence-free flow derived from a simplex stream function.
	Noise SyntheticKind = "noise"
)

// SyntheticSpec parameterizes a generated global dataset.
type SyntheticSpec struct {
	Kind     SyntheticKind `yaml:"kind"`
	Lon      int           `yaml:"lon"`
	Lat      int           `yaml:"lat"`
	Lev      int           `yaml:"lev"`
	Seed     int64         `yaml:"seed"`
	MaxSpeed float64       `yaml:"max_speed"`
}

const (
	vortexRadius = 25.0 // degrees
	noiseScale   = 2.5
	noiseDelta   = 0.25 // degrees, finite difference step
)

// Synthetic generates a global dataset covering lon [0, 360) and lat
// [-90, 90].
func Synthetic(spec SyntheticSpec) (*Dataset, error) {
	if spec.Lon < 2 || spec.Lat < 2 || spec.Lev < 1 {
		return nil, invalid("dimension", "synthetic grid needs lon>=2 lat>=2 lev>=1, got %dx%dx%d", spec.Lon, spec.Lat, spec.Lev)
	}
	if spec.MaxSpeed <= 0 {
		return nil, invalid("max_speed", "must be positive, got %v", spec.MaxSpeed)
	}

	var sample func(lon, lat float64, lev int) (u, v float64)
	switch spec.Kind {
	case Zonal:
		sample = func(_, lat float64, _ int) (float64, float64) {
			return math.Cos(lat * math.Pi / 180), 0
		}
	case Vortex:
		sample = vortex
	case Noise:
		sample = curlNoise(opensimplex.New(spec.Seed))
	default:
		return nil, fmt.Errorf("unknown synthetic kind %q", spec.Kind)
	}

	dim := Dimension{Lon: spec.Lon, Lat: spec.Lat, Lev: spec.Lev}
	lonStep := 360.0 / float64(spec.Lon)
	ds := &Dataset{
		Dimension: dim,
		Lon:       Axis{Min: 0, Max: 360 - lonStep},
		Lat:       Axis{Min: -90, Max: 90},
		Lev:       Axis{Min: 0, Max: float64(spec.Lev - 1)},
		U:         Component{Array: make([]float64, dim.Total())},
		V:         Component{Array: make([]float64, dim.Total())},
	}

	latStep := 180.0 / float64(spec.Lat-1)
	peak := 0.0
	for lev := 0; lev < spec.Lev; lev++ {
		for j := 0; j < spec.Lat; j++ {
			lat := -90 + float64(j)*latStep
			for i := 0; i < spec.Lon; i++ {
				lon := float64(i) * lonStep
				u, v := sample(lon, lat, lev)
				k := (lev*spec.Lat+j)*spec.Lon + i
				ds.U.Array[k], ds.V.Array[k] = u, v
				peak = math.Max(peak, math.Hypot(u, v))
			}
		}
	}

	if peak > 0 {
		scale := spec.MaxSpeed / peak
		for k := range ds.U.Array {
			ds.U.Array[k] *= scale
			ds.V.Array[k] *= scale
		}
	}
	ds.U.Min, ds.U.Max = bounds(ds.U.Array)
	ds.V.Min, ds.V.Max = bounds(ds.V.Array)
	return ds, nil
}

func vortex(lon, lat float64, _ int) (u, v float64) {
	dx := lon - 180
	dy := lat
	r := math.Hypot(dx, dy)
	if r == 0 {
		return 0, 0
	}
	speed := (r / vortexRadius) * math.Exp(1-r/vortexRadius)
	return -dy / r * speed, dx / r * speed
}

// curlNoise samples a stream function on the unit sphere so the field has no
// seam at the antimeridian, and returns its rotated gradient.
func curlNoise(noise opensimplex.Noise) func(lon, lat float64, lev int) (float64, float64) {
	psi := func(lon, lat float64, lev int) float64 {
		sinLat, cosLat := math.Sincos(lat * math.Pi / 180)
		sinLon, cosLon := math.Sincos(lon * math.Pi / 180)
		return noise.Eval3(
			cosLat*cosLon*noiseScale+float64(lev)*7.3,
			cosLat*sinLon*noiseScale,
			sinLat*noiseScale,
		)
	}
	return func(lon, lat float64, lev int) (float64, float64) {
		dPsiDLat := (psi(lon, lat+noiseDelta, lev) - psi(lon, lat-noiseDelta, lev)) / (2 * noiseDelta)
		dPsiDLon := (psi(lon+noiseDelta, lat, lev) - psi(lon-noiseDelta, lat, lev)) / (2 * noiseDelta)
		cosLat := math.Max(math.Cos(lat*math.Pi/180), 1e-3)
		return dPsiDLat, -dPsiDLon / cosLat
	}
}
