package soft

import (
	"math"

	"github.com/pthm-cable/currents/gpu"
)

type texture struct {
	id            uint32
	width, height int
	format        gpu.Format
	data          []float32
}

func newTexture(id uint32, width, height int, format gpu.Format) *texture {
	return &texture{
		id:     id,
		width:  width,
		height: height,
		format: format,
		data:   make([]float32, width*height*format.Channels()),
	}
}

func (t *texture) ID() uint32         { return t.id }
func (t *texture) Width() int         { return t.width }
func (t *texture) Height() int        { return t.height }
func (t *texture) Format() gpu.Format { return t.format }

func (t *texture) bytes() int64 {
	return int64(t.width) * int64(t.height) * int64(t.format.BytesPerTexel())
}

// Fetch reads a texel with clamp-to-edge addressing.
func (t *texture) Fetch(x, y int) gpu.Texel {
	x = min(max(x, 0), t.width-1)
	y = min(max(y, 0), t.height-1)

	var out gpu.Texel
	c := t.format.Channels()
	copy(out[:c], t.data[(y*t.width+x)*c:])
	return out
}

func (t *texture) store(x, y int, v gpu.Texel) {
	c := t.format.Channels()
	i := (y*t.width + x) * c
	if t.format == gpu.RGBA8 {
		for k := 0; k < c; k++ {
			t.data[i+k] = quantize(v[k])
		}
		return
	}
	copy(t.data[i:i+c], v[:c])
}

func (t *texture) fill(v gpu.Texel) {
	for y := 0; y < t.height; y++ {
		for x := 0; x < t.width; x++ {
			t.store(x, y, v)
		}
	}
}

// quantize rounds a normalized value to the nearest 8-bit level.
func quantize(v float32) float32 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 1
	}
	return float32(math.Round(float64(v)*255) / 255)
}
