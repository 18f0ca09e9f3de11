package field

import (
	"errors"
	"math"
	"testing"
)

// uniform returns a dataset with constant u and v.
func uniform(lon, lat, lev int, u, v float64) *Dataset {
	n := lon * lat * lev
	ds := &Dataset{
		Dimension: Dimension{Lon: lon, Lat: lat, Lev: lev},
		Lon:       Axis{Min: 0, Max: 10},
		Lat:       Axis{Min: 0, Max: 10},
		Lev:       Axis{Min: 0, Max: 0},
		U:         Component{Array: make([]float64, n), Min: u, Max: u},
		V:         Component{Array: make([]float64, n), Min: v, Max: v},
	}
	if lon == 1 {
		ds.Lon.Max = 0
	}
	if lat == 1 {
		ds.Lat.Max = 0
	}
	if lev > 1 {
		ds.Lev.Max = float64(lev - 1)
	}
	for i := 0; i < n; i++ {
		ds.U.Array[i] = u
		ds.V.Array[i] = v
	}
	return ds
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(ds *Dataset)
		field  string
	}{
		{"valid", func(ds *Dataset) {}, ""},
		{"zero dimension", func(ds *Dataset) { ds.Dimension.Lev = 0 }, "dimension"},
		{"short u", func(ds *Dataset) { ds.U.Array = ds.U.Array[:3] }, "u"},
		{"short v", func(ds *Dataset) { ds.V.Array = nil }, "v"},
		{"axis per sample ok", func(ds *Dataset) { ds.Lon.Array = make([]float64, 8) }, ""},
		{"axis per axis ok", func(ds *Dataset) { ds.Lat.Array = []float64{0, 10} }, ""},
		{"axis bad length", func(ds *Dataset) { ds.Lon.Array = make([]float64, 3) }, "lon"},
		{"axis inverted", func(ds *Dataset) { ds.Lon.Min, ds.Lon.Max = 10, 0 }, "lon"},
		{"lat outside globe", func(ds *Dataset) { ds.Lat.Max = 95 }, "lat"},
		{"non-finite bound", func(ds *Dataset) { ds.U.Max = math.Inf(1) }, "u"},
		{"component inverted", func(ds *Dataset) { ds.V.Min, ds.V.Max = 2, 1 }, "v"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := uniform(2, 2, 2, 1, 0)
			tt.mutate(ds)
			err := ds.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidDataset) {
				t.Fatalf("expected ErrInvalidDataset, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected field %q, got %v", tt.field, err)
			}
		})
	}
}

func TestNewGridNonFiniteBecomesZero(t *testing.T) {
	ds := uniform(2, 2, 1, 1, 1)
	ds.U.Array[3] = math.NaN()
	ds.V.Array[0] = math.Inf(-1)

	g, err := NewGrid(ds, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.U()[3] != 0 || g.V()[0] != 0 {
		t.Errorf("expected missing samples stored as 0, got u=%v v=%v", g.U()[3], g.V()[0])
	}
	if g.U()[0] != 1 {
		t.Errorf("expected finite sample kept, got %v", g.U()[0])
	}
}

func TestNewGridFlipY(t *testing.T) {
	ds := uniform(1, 3, 1, 0, 0)
	ds.Lat.Max = 20
	ds.U.Array = []float64{30, 20, 10} // north to south
	ds.U.Min, ds.U.Max = 10, 30

	g, err := NewGrid(ds, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float32{10, 20, 30}
	for i, w := range want {
		if g.U()[i] != w {
			t.Errorf("row %d: expected %v, got %v", i, w, g.U()[i])
		}
	}
}

func TestGridLevels(t *testing.T) {
	ds := uniform(2, 2, 3, 0, 0)
	ds.Lev = Axis{Array: []float64{1000, 850, 500}, Min: 500, Max: 1000}
	g, err := NewGrid(ds, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	levels := g.Levels()
	if len(levels) != 3 || levels[0] != 1000 || levels[2] != 500 {
		t.Errorf("expected declared level values, got %v", levels)
	}
}
