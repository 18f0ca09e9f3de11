package main

import (
	"image/color"
	"math"

	"github.com/pthm-cable/currents/camera"
)

var (
	space = color.RGBA{R: 6, G: 8, B: 16, A: 255}
	ocean = [3]float64{18, 42, 78}
)

// graticule reports whether (lon, lat) lies on a 30 degree grid line.
func graticule(lon, lat float64) bool {
	const width = 0.35
	dl := math.Abs(math.Mod(lon+15, 30) - 15)
	dp := math.Abs(math.Mod(lat+90+15, 30) - 15)
	return dl < width || dp < width
}

// composeFrame draws the shaded globe and blends the trail composite over
// it. trail holds four floats per pixel.
func composeFrame(pixels []color.RGBA, globe []camera.GlobeSample, trail []float32) {
	for i := range pixels {
		base := [3]float64{float64(space.R), float64(space.G), float64(space.B)}
		if i < len(globe) && globe[i].Hit {
			g := globe[i]
			light := 0.35 + 0.65*g.Shade
			for k := range base {
				base[k] = ocean[k] * light
			}
			if graticule(g.Lon, g.Lat) {
				for k := range base {
					base[k] += 25
				}
			}
		}

		a := float64(trail[i*4+3])
		var out [3]uint8
		for k := range out {
			v := float64(trail[i*4+k])*255*a + base[k]*(1-a)
			out[k] = uint8(math.Max(0, math.Min(255, math.Round(v))))
		}
		pixels[i] = color.RGBA{R: out[0], G: out[1], B: out[2], A: 255}
	}
}
