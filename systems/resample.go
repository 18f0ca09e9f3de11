package systems

import (
	"math"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/geo"
	"github.com/pthm-cable/currents/gpu"
)

// Hash is the stateless per-particle random function:
// t = dot((12.9898, 78.233), c*seed); fract(sin(t) * (4375.85453 + t)).
// c is a per-frame coefficient. The result is in [0, 1).
func Hash(sx, sy, c float64) float64 {
	t := 12.9898*c*sx + 78.233*c*sy
	v := math.Sin(t) * (4375.85453 + t)
	f := v - math.Floor(v)
	if f >= 1 {
		f = 0
	}
	return f
}

// DropRate returns the reseed probability for a particle with speed norm.
func DropRate(base, bump, norm float64) float64 {
	return base + bump*norm
}

// ResampleParams configures the resample pass.
type ResampleParams struct {
	DropRate     float64
	DropRateBump float64
	LonRange     field.Range
	LatRange     field.Range
	// Coefficient scales the hash seeds; the engine draws a new one every
	// frame.
	Coefficient float64
}

// Resample decides the next position of one particle. pos is the advected
// texel, speed the speed texel and (s, t) the particle's texture coordinate.
func Resample(p ResampleParams, pos, speed gpu.Texel, s, t float64) gpu.Texel {
	lon, lat := float64(pos[0]), float64(pos[1])

	r := Hash(lon+s, lat+t, p.Coefficient)
	drop := DropRate(p.DropRate, p.DropRateBump, float64(speed[3]))
	if r < drop || lat < -90 || lat > 90 {
		sx, sy := float64(speed[0])+s, float64(speed[1])+t
		lon = p.LonRange.Min + Hash(sx+1.3, sy+1.3, p.Coefficient)*p.LonRange.Width()
		lat = p.LatRange.Min + Hash(sx+2.1, sy+2.1, p.Coefficient)*p.LatRange.Width()
		lat = math.Max(-90, math.Min(90, lat))
		return gpu.Texel{float32(wrap32(lon)), float32(lat), pos[2], 1}
	}
	return gpu.Texel{float32(wrap32(lon)), pos[1], pos[2], 0}
}

// wrap32 wraps into [0, 360) such that the float32 conversion stays below
// 360.
func wrap32(lon float64) float64 {
	lon = geo.WrapLongitude(lon)
	if float32(lon) >= 360 {
		return 0
	}
	return lon
}

// ResampleProgram reseeds dropped or out-of-range particles and wraps
// longitudes. Textures: advected positions, speed.
type ResampleProgram struct{}

func (ResampleProgram) Name() string { return "resample" }

func (ResampleProgram) Prepare(values map[string]any) (gpu.FragmentFunc, error) {
	r := gpu.NewUniformReader("resample", values)
	lonRange := r.Vec2("lonRange")
	latRange := r.Vec2("latRange")
	p := ResampleParams{
		DropRate:     r.Float("dropRate"),
		DropRateBump: r.Float("dropRateBump"),
		LonRange:     field.Range{Min: lonRange[0], Max: lonRange[1]},
		LatRange:     field.Range{Min: latRange[0], Max: latRange[1]},
		Coefficient:  r.Float("randomCoefficient"),
	}
	count := r.Int("count")
	if err := r.Err(); err != nil {
		return nil, err
	}

	return func(frag gpu.Fragment, tex []gpu.Sampler) gpu.FragmentOutput {
		if frag.Y*tex[0].Width()+frag.X >= count {
			return gpu.FragmentOutput{}
		}
		pos := tex[0].Fetch(frag.X, frag.Y)
		speed := tex[1].Fetch(frag.X, frag.Y)
		return gpu.FragmentOutput{Color: Resample(p, pos, speed, frag.S, frag.T)}
	}, nil
}

// RunResample writes the next position slot.
func RunResample(host gpu.Host, st *ParticleState, p ResampleParams) error {
	return host.RunFragmentPass(st.slots[st.next].fb, ResampleProgram{}, gpu.Uniforms{
		Textures: []gpu.Texture{st.Advected(), st.Speed()},
		Values: map[string]any{
			"dropRate":          p.DropRate,
			"dropRateBump":      p.DropRateBump,
			"lonRange":          [2]float64{p.LonRange.Min, p.LonRange.Max},
			"latRange":          [2]float64{p.LatRange.Min, p.LatRange.Max},
			"randomCoefficient": p.Coefficient,
			"count":             st.Count(),
		},
	})
}
