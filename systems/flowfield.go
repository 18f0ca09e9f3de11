package systems

import (
	"math"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
)

// DefaultRKStep is the midpoint step of the speed integrator.
const DefaultRKStep = 0.5

// SpeedParams configures the speed pass.
type SpeedParams struct {
	Layout      field.Layout
	URange      field.Range
	VRange      field.Range
	SpeedFactor float64
	PixelSize   float64
	Step        float64
}

// SpeedSample is the per-particle result of the speed pass: a displacement
// in degrees/levels and the normalized speed of the field at the particle.
type SpeedSample struct {
	DLon, DLat, DLev float64
	Norm             float64
}

// Texel packs the sample as (dx, dy, dz, norm).
func (s SpeedSample) Texel() gpu.Texel {
	return gpu.Texel{float32(s.DLon), float32(s.DLat), float32(s.DLev), float32(s.Norm)}
}

// SampleSpeed computes the RK2 midpoint displacement of a particle at
// (lon, lat, lev): the field is evaluated again half a step along f(p) and
// the full step follows that midpoint velocity. u and v fetch raw component
// texels.
func SampleSpeed(p SpeedParams, u, v func(col, row int) float64, lon, lat, lev float64) SpeedSample {
	k := p.Step * p.SpeedFactor * p.PixelSize

	u0 := p.Layout.Bilinear(lon, lat, lev, u)
	v0 := p.Layout.Bilinear(lon, lat, lev, v)
	dLon, dLat := field.ToDegrees(lat, u0, v0)

	midLon := lon + 0.5*k*dLon
	midLat := lat + 0.5*k*dLat
	u1 := p.Layout.Bilinear(midLon, midLat, lev, u)
	v1 := p.Layout.Bilinear(midLon, midLat, lev, v)
	dLon, dLat = field.ToDegrees(midLat, u1, v1)

	return SpeedSample{
		DLon: k * dLon,
		DLat: k * dLat,
		Norm: math.Hypot(p.URange.Normalize(u0), p.VRange.Normalize(v0)),
	}
}

// SpeedProgram samples the field at each particle's current position.
// Textures: current positions, U, V.
type SpeedProgram struct{}

func (SpeedProgram) Name() string { return "speed" }

// Prepare binds the speed uniforms.
func (SpeedProgram) Prepare(values map[string]any) (gpu.FragmentFunc, error) {
	r := gpu.NewUniformReader("speed", values)
	layout, _ := r.Any("layout").(field.Layout)
	uRange := r.Vec2("uRange")
	vRange := r.Vec2("vRange")
	params := SpeedParams{
		Layout:      layout,
		URange:      field.Range{Min: uRange[0], Max: uRange[1]},
		VRange:      field.Range{Min: vRange[0], Max: vRange[1]},
		SpeedFactor: r.Float("speedFactor"),
		PixelSize:   r.Float("pixelSize"),
		Step:        r.Float("rkStep"),
	}
	count := r.Int("count")
	if err := r.Err(); err != nil {
		return nil, err
	}
	if layout.LonCount == 0 {
		return nil, &gpu.UniformError{Program: "speed", Name: "layout", Want: "field.Layout", Got: values["layout"]}
	}

	return func(frag gpu.Fragment, tex []gpu.Sampler) gpu.FragmentOutput {
		if frag.Y*tex[0].Width()+frag.X >= count {
			return gpu.FragmentOutput{}
		}
		pos := tex[0].Fetch(frag.X, frag.Y)
		fetchU := func(col, row int) float64 { return float64(tex[1].Fetch(col, row)[0]) }
		fetchV := func(col, row int) float64 { return float64(tex[2].Fetch(col, row)[0]) }
		s := SampleSpeed(params, fetchU, fetchV, float64(pos[0]), float64(pos[1]), float64(pos[2]))
		return gpu.FragmentOutput{Color: s.Texel()}
	}, nil
}

// SpeedUniforms builds the uniforms of the speed pass.
func SpeedUniforms(st *ParticleState, ft FieldTextures, p SpeedParams) gpu.Uniforms {
	return gpu.Uniforms{
		Textures: []gpu.Texture{st.Current(), ft.U, ft.V},
		Values: map[string]any{
			"layout":      p.Layout,
			"uRange":      [2]float64{p.URange.Min, p.URange.Max},
			"vRange":      [2]float64{p.VRange.Min, p.VRange.Max},
			"speedFactor": p.SpeedFactor,
			"pixelSize":   p.PixelSize,
			"rkStep":      p.Step,
			"count":       st.Count(),
		},
	}
}

// RunSpeed writes the speed texture from the current positions.
func RunSpeed(host gpu.Host, st *ParticleState, ft FieldTextures, p SpeedParams) error {
	return host.RunFragmentPass(st.speedSlot.fb, SpeedProgram{}, SpeedUniforms(st, ft, p))
}
