package field

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"
)

func TestLoadCSV(t *testing.T) {
	in := `lon,lat,lev,u,v
0,10,0,1,-2
5,10,0,3,0
0,0,0,2,1
`
	ds, err := LoadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Dimension != (Dimension{Lon: 2, Lat: 2, Lev: 1}) {
		t.Fatalf("unexpected dimension %+v", ds.Dimension)
	}
	if ds.Lat.Min != 0 || ds.Lat.Max != 10 {
		t.Errorf("expected lat bounds [0,10], got [%v,%v]", ds.Lat.Min, ds.Lat.Max)
	}
	// (lon 5, lat 0) has no row.
	if !math.IsNaN(ds.U.Array[1]) {
		t.Errorf("expected missing cell NaN, got %v", ds.U.Array[1])
	}
	if ds.U.Min != 1 || ds.U.Max != 3 || ds.V.Min != -2 || ds.V.Max != 1 {
		t.Errorf("unexpected component bounds u=[%v,%v] v=[%v,%v]", ds.U.Min, ds.U.Max, ds.V.Min, ds.V.Max)
	}
}

func TestLoadJSONRejectsInvalid(t *testing.T) {
	in := `{"dimension":{"lon":2,"lat":1,"lev":1},"lon":{"min":0,"max":1},"lat":{"min":0,"max":0},"lev":{"min":0,"max":0},"u":{"array":[1],"min":0,"max":1},"v":{"array":[1,1],"min":0,"max":1}}`
	_, err := LoadJSON(strings.NewReader(in))
	if !errors.Is(err, ErrInvalidDataset) {
		t.Errorf("expected ErrInvalidDataset, got %v", err)
	}
}

func TestCSVRoundTripThroughWriter(t *testing.T) {
	ds, err := Synthetic(SyntheticSpec{Kind: Zonal, Lon: 8, Lat: 5, Lev: 1, MaxSpeed: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := ds.WriteCSV(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	back, err := LoadCSV(&buf)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Dimension != ds.Dimension {
		t.Errorf("expected %+v, got %+v", ds.Dimension, back.Dimension)
	}
	if math.Abs(back.U.Max-10) > 1e-9 {
		t.Errorf("expected peak zonal speed 10, got %v", back.U.Max)
	}
}

func TestSynthetic(t *testing.T) {
	for _, kind := range []SyntheticKind{Zonal, Vortex, Noise} {
		t.Run(string(kind), func(t *testing.T) {
			ds, err := Synthetic(SyntheticSpec{Kind: kind, Lon: 36, Lat: 19, Lev: 2, Seed: 7, MaxSpeed: 20})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			g, err := NewGrid(ds, false)
			if err != nil {
				t.Fatalf("generated dataset invalid: %v", err)
			}
			if !g.Global {
				t.Error("expected a global grid")
			}
			peak := 0.0
			for i := range ds.U.Array {
				peak = math.Max(peak, math.Hypot(ds.U.Array[i], ds.V.Array[i]))
			}
			if math.Abs(peak-20) > 1e-9 {
				t.Errorf("expected peak speed 20, got %v", peak)
			}
		})
	}

	if _, err := Synthetic(SyntheticSpec{Kind: "storm", Lon: 4, Lat: 4, Lev: 1, MaxSpeed: 1}); err == nil {
		t.Error("expected unknown kind to fail")
	}
}
