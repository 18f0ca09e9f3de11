package systems

import "github.com/pthm-cable/currents/gpu"

// IntegrateProgram adds the speed displacement to the current position.
// No wrapping or clamping happens here; isRandom is cleared.
// Textures: current positions, speed.
type IntegrateProgram struct{}

func (IntegrateProgram) Name() string { return "integrate" }

func (IntegrateProgram) Prepare(map[string]any) (gpu.FragmentFunc, error) {
	return func(frag gpu.Fragment, tex []gpu.Sampler) gpu.FragmentOutput {
		pos := tex[0].Fetch(frag.X, frag.Y)
		d := tex[1].Fetch(frag.X, frag.Y)
		return gpu.FragmentOutput{Color: gpu.Texel{pos[0] + d[0], pos[1] + d[1], pos[2] + d[2], 0}}
	}, nil
}

// RunIntegrate writes the advected texture.
func RunIntegrate(host gpu.Host, st *ParticleState) error {
	return host.RunFragmentPass(st.advected.fb, IntegrateProgram{}, gpu.Uniforms{
		Textures: []gpu.Texture{st.Current(), st.Speed()},
	})
}
