package renderer

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"github.com/pthm-cable/currents/gpu"
)

// Shader maps one texel to a display colour.
type Shader func(gpu.Texel) color.NRGBA

func unit8(v float32) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, float64(v))) * 255))
}

// ShadeRGBA shows colour texels as they are.
func ShadeRGBA(t gpu.Texel) color.NRGBA {
	return color.NRGBA{unit8(t[0]), unit8(t[1]), unit8(t[2]), unit8(t[3])}
}

// ShadeChannel returns a shader showing channel c scaled from [lo, hi] to
// grey.
func ShadeChannel(c int, lo, hi float32) Shader {
	return func(t gpu.Texel) color.NRGBA {
		v := uint8(0)
		if hi > lo {
			v = unit8((t[c] - lo) / (hi - lo))
		}
		return color.NRGBA{v, v, v, 255}
	}
}

// Image reads tex back from the host and converts it with shade. Row 0 of
// the texture is the top row of the image.
func Image(host gpu.Host, tex gpu.Texture, shade Shader) (*image.NRGBA, error) {
	data, err := host.Read(tex)
	if err != nil {
		return nil, err
	}
	w, h := tex.Width(), tex.Height()
	ch := tex.Format().Channels()
	if len(data) != w*h*ch {
		return nil, fmt.Errorf("%w: read %d values for %dx%d %s", gpu.ErrInvalidArgument, len(data), w, h, tex.Format())
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		var t gpu.Texel
		copy(t[:ch], data[i*ch:(i+1)*ch])
		if ch == 1 {
			t = gpu.Texel{t[0], t[0], t[0], 1}
		}
		img.SetNRGBA(i%w, i/w, shade(t))
	}
	return img, nil
}

// SavePNG writes tex to path as a PNG.
func SavePNG(host gpu.Host, tex gpu.Texture, shade Shader, path string) error {
	img, err := Image(host, tex, shade)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
