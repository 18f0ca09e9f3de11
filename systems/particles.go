package systems

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/pthm-cable/currents/field"
	"github.com/pthm-cable/currents/gpu"
)

// slot is a particle texture and the framebuffer that renders into it.
type slot struct {
	tex gpu.Texture
	fb  gpu.Framebuffer
}

// ParticleState holds the particle positions on the host: three position
// slots (previous, current, next) and two scratch textures (advected,
// speed), each an RGBA32F texture with one texel per particle laid out
// row-major. Texels are (lon, lat, lev, isRandom). Texels past Count are
// inactive.
type ParticleState struct {
	host          gpu.Host
	count         int
	width, height int

	slots               [3]slot
	prev, cur, next     int // indices into slots
	advected, speedSlot slot
}

// TextureSize returns the particle texture size for n particles:
// width = ceil(sqrt(n)), height = ceil(n/width).
func TextureSize(n int) (width, height int) {
	if n <= 0 {
		return 0, 0
	}
	width = int(math.Ceil(math.Sqrt(float64(n))))
	height = (n + width - 1) / width
	return width, height
}

// SeedPositions returns initial texel data for count particles placed
// uniformly in the restart ranges, each on one of the given levels and
// flagged isRandom.
func SeedPositions(rng *rand.Rand, count int, lonRange, latRange field.Range, levels []float64) []float32 {
	w, h := TextureSize(count)
	data := make([]float32, w*h*4)
	for i := 0; i < count; i++ {
		lev := 0.0
		if len(levels) > 0 {
			lev = levels[rng.Intn(len(levels))]
		}
		lon := lonRange.Min + rng.Float64()*lonRange.Width()
		lat := latRange.Min + rng.Float64()*latRange.Width()
		data[i*4] = float32(lon)
		data[i*4+1] = float32(lat)
		data[i*4+2] = float32(lev)
		data[i*4+3] = 1
	}
	return data
}

// NewParticleState allocates the particle textures and uploads seed into all
// three position slots. On failure everything allocated so far is released.
func NewParticleState(host gpu.Host, count int, seed []float32) (st *ParticleState, err error) {
	w, h := TextureSize(count)
	if w == 0 {
		return nil, fmt.Errorf("%w: particle count %d", gpu.ErrInvalidArgument, count)
	}
	if len(seed) != w*h*4 {
		return nil, fmt.Errorf("%w: seed has %d values, need %d", gpu.ErrInvalidArgument, len(seed), w*h*4)
	}

	st = &ParticleState{host: host, count: count, width: w, height: h, prev: 0, cur: 1, next: 2}
	defer func() {
		if err != nil {
			err = errors.Join(err, st.Release())
			st = nil
		}
	}()

	for i := range st.slots {
		if st.slots[i], err = newSlot(host, w, h); err != nil {
			return st, err
		}
		if err = host.Upload(st.slots[i].tex, seed); err != nil {
			return st, err
		}
	}
	if st.advected, err = newSlot(host, w, h); err != nil {
		return st, err
	}
	if st.speedSlot, err = newSlot(host, w, h); err != nil {
		return st, err
	}
	return st, nil
}

func newSlot(host gpu.Host, w, h int) (slot, error) {
	tex, err := host.CreateTexture(w, h, gpu.RGBA32F)
	if err != nil {
		return slot{}, err
	}
	fb, err := host.CreateFramebuffer(tex, nil)
	if err != nil {
		return slot{tex: tex}, err
	}
	return slot{tex: tex, fb: fb}, nil
}

// Count returns the number of active particles.
func (s *ParticleState) Count() int { return s.count }

// Size returns the particle texture size.
func (s *ParticleState) Size() (width, height int) { return s.width, s.height }

// Previous returns the positions of two frames ago.
func (s *ParticleState) Previous() gpu.Texture { return s.slots[s.prev].tex }

// Current returns the positions of the last frame.
func (s *ParticleState) Current() gpu.Texture { return s.slots[s.cur].tex }

// Next returns the positions being produced this frame.
func (s *ParticleState) Next() gpu.Texture { return s.slots[s.next].tex }

// Advected returns the integrated, not yet resampled positions.
func (s *ParticleState) Advected() gpu.Texture { return s.advected.tex }

// Speed returns the per-particle displacement and speed norm.
func (s *ParticleState) Speed() gpu.Texture { return s.speedSlot.tex }

// Rotate shifts the slots so next becomes current and current becomes
// previous; the old previous slot is reused as next. No data is copied.
func (s *ParticleState) Rotate() {
	s.prev, s.cur, s.next = s.cur, s.next, s.prev
}

// Release frees every texture and framebuffer.
func (s *ParticleState) Release() error {
	var res []gpu.Resource
	for _, sl := range append(s.slots[:], s.advected, s.speedSlot) {
		if sl.fb != nil {
			res = append(res, sl.fb)
		}
		if sl.tex != nil {
			res = append(res, sl.tex)
		}
	}
	s.slots = [3]slot{}
	s.advected, s.speedSlot = slot{}, slot{}
	return s.host.Release(res...)
}
