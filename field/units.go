package field

import "math"

// minMetersPerDegree bounds the longitude length near the poles.
const minMetersPerDegree = 1.0

// MetersPerDegree returns the length in metres of one degree of longitude
// and of latitude at the given latitude (degrees).
func MetersPerDegree(lat float64) (lonMeters, latMeters float64) {
	phi := lat * math.Pi / 180
	latMeters = 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi)
	lonMeters = 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi)
	lonMeters = math.Max(lonMeters, minMetersPerDegree)
	return lonMeters, latMeters
}

// ToDegrees converts a displacement (u east, v north) in metres at the given
// latitude into degrees of longitude and latitude.
func ToDegrees(lat, u, v float64) (dLon, dLat float64) {
	lonMeters, latMeters := MetersPerDegree(lat)
	return u / lonMeters, v / latMeters
}
