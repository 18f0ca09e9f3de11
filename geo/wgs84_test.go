package geo

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestToCartesianKnownPoints(t *testing.T) {
	tests := []struct {
		name        string
		lon, lat, h float64
		want        r3.Vec
	}{
		{"equator prime meridian", 0, 0, 0, r3.Vec{X: SemiMajorAxis}},
		{"equator 90E", 90, 0, 0, r3.Vec{Y: SemiMajorAxis}},
		{"north pole", 0, 90, 0, r3.Vec{Z: SemiMinorAxis}},
		{"south pole raised", 0, -90, 1000, r3.Vec{Z: -(SemiMinorAxis + 1000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToCartesian(tt.lon, tt.lat, tt.h)
			if d := r3.Norm(r3.Sub(got, tt.want)); d > 1e-6 {
				t.Errorf("expected %v, got %v (off by %g m)", tt.want, got, d)
			}
		})
	}
}

func TestGeodeticRoundTrip(t *testing.T) {
	heights := []float64{-1000, 0, 500, 10000, 100000}
	for _, h := range heights {
		for lat := -90.0; lat <= 90; lat += 7.5 {
			for lon := -179.0; lon < 180; lon += 23 {
				p := ToCartesian(lon, lat, h)
				gotLon, gotLat, gotH := FromCartesian(p)

				if math.Abs(gotLat-lat) > 1e-6 {
					t.Fatalf("lat %v lon %v h %v: expected lat %v, got %v", lat, lon, h, lat, gotLat)
				}
				// Longitude is undefined at the poles.
				if math.Abs(lat) < 90 && math.Abs(gotLon-lon) > 1e-6 {
					t.Fatalf("lat %v lon %v h %v: expected lon %v, got %v", lat, lon, h, lon, gotLon)
				}
				if math.Abs(gotH-h) > 1e-3 {
					t.Fatalf("lat %v lon %v h %v: expected height %v, got %v", lat, lon, h, h, gotH)
				}
			}
		}
	}
}

func TestWrapLongitude(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0, 0},
		{359.5, 359.5},
		{360, 0},
		{-1, 359},
		{725, 5},
		{-360, 0},
	}
	for _, tt := range tests {
		got := WrapLongitude(tt.in)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("WrapLongitude(%v): expected %v, got %v", tt.in, tt.want, got)
		}
		if got < 0 || got >= 360 {
			t.Errorf("WrapLongitude(%v) = %v out of [0,360)", tt.in, got)
		}
	}
}
