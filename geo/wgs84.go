// Package geo converts between geodetic and Earth-centred coordinates and
// provides the 4x4 matrices used to project them.
package geo

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid.
const (
	SemiMajorAxis = 6378137.0
	Flattening    = 1 / 298.257223563
	SemiMinorAxis = SemiMajorAxis * (1 - Flattening)

	// eccentricity squared
	e2 = Flattening * (2 - Flattening)
)

const (
	maxGeodeticIterations = 20
	geodeticTolerance     = 1e-14
)

// ToCartesian converts longitude and latitude in degrees and a height in
// metres above the ellipsoid to an ECEF position in metres.
func ToCartesian(lon, lat, height float64) r3.Vec {
	lonRad := lon * math.Pi / 180
	latRad := lat * math.Pi / 180
	sinLat, cosLat := math.Sincos(latRad)
	sinLon, cosLon := math.Sincos(lonRad)

	n := primeVerticalRadius(sinLat)
	return r3.Vec{
		X: (n + height) * cosLat * cosLon,
		Y: (n + height) * cosLat * sinLon,
		Z: (n*(1-e2) + height) * sinLat,
	}
}

// FromCartesian converts an ECEF position back to longitude and latitude in
// degrees and height in metres. Longitude is returned in (-180, 180].
func FromCartesian(p r3.Vec) (lon, lat, height float64) {
	rho := math.Hypot(p.X, p.Y)
	lon = math.Atan2(p.Y, p.X)

	if rho == 0 {
		// On the polar axis.
		lat = math.Copysign(math.Pi/2, p.Z)
		height = math.Abs(p.Z) - SemiMinorAxis
		return lon * 180 / math.Pi, lat * 180 / math.Pi, height
	}

	lat = math.Atan2(p.Z, rho*(1-e2))
	for range maxGeodeticIterations {
		sinLat := math.Sin(lat)
		n := primeVerticalRadius(sinLat)
		next := math.Atan2(p.Z+e2*n*sinLat, rho)
		done := math.Abs(next-lat) < geodeticTolerance
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := primeVerticalRadius(sinLat)
	height = rho*cosLat + (p.Z+e2*n*sinLat)*sinLat - n
	return lon * 180 / math.Pi, lat * 180 / math.Pi, height
}

// SurfaceNormal returns the geodetic up vector at lon/lat in degrees.
func SurfaceNormal(lon, lat float64) r3.Vec {
	sinLat, cosLat := math.Sincos(lat * math.Pi / 180)
	sinLon, cosLon := math.Sincos(lon * math.Pi / 180)
	return r3.Vec{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat}
}

func primeVerticalRadius(sinLat float64) float64 {
	return SemiMajorAxis / math.Sqrt(1-e2*sinLat*sinLat)
}

// WrapLongitude maps lon into [0, 360).
func WrapLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		lon = 0
	}
	return lon
}
