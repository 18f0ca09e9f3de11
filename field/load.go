package field

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/floats"
)

// Row is one sample of a CSV dataset.
type Row struct {
	Lon float64 `csv:"lon"`
	Lat float64 `csv:"lat"`
	Lev float64 `csv:"lev"`
	U   float64 `csv:"u"`
	V   float64 `csv:"v"`
}

// LoadFile reads a dataset from disk, choosing the decoder by extension
// (.json or .csv).
func LoadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".csv":
		return LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported dataset extension %q", filepath.Ext(path))
	}
}

// LoadJSON decodes a dataset in its native JSON form.
func LoadJSON(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("decoding dataset: %w", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// LoadCSV builds a dataset from lon,lat,lev,u,v rows. Axes are the sorted
// distinct coordinates; cells with no row are left NaN (missing). CSV has no
// declared bounds, so they are computed from the data.
func LoadCSV(r io.Reader) (*Dataset, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decoding csv dataset: %w", err)
	}
	if len(rows) == 0 {
		return nil, invalid("rows", "csv dataset is empty")
	}

	lons := make([]float64, len(rows))
	lats := make([]float64, len(rows))
	levs := make([]float64, len(rows))
	for i, row := range rows {
		lons[i], lats[i], levs[i] = row.Lon, row.Lat, row.Lev
	}
	lons = distinct(lons)
	lats = distinct(lats)
	levs = distinct(levs)

	dim := Dimension{Lon: len(lons), Lat: len(lats), Lev: len(levs)}
	ds := &Dataset{
		Dimension: dim,
		Lon:       Axis{Array: lons, Min: lons[0], Max: lons[len(lons)-1]},
		Lat:       Axis{Array: lats, Min: lats[0], Max: lats[len(lats)-1]},
		Lev:       Axis{Array: levs, Min: levs[0], Max: levs[len(levs)-1]},
		U:         Component{Array: filled(dim.Total(), math.NaN())},
		V:         Component{Array: filled(dim.Total(), math.NaN())},
	}

	lonIdx, latIdx, levIdx := indexOf(lons), indexOf(lats), indexOf(levs)
	for _, row := range rows {
		i := (levIdx[row.Lev]*dim.Lat+latIdx[row.Lat])*dim.Lon + lonIdx[row.Lon]
		ds.U.Array[i] = row.U
		ds.V.Array[i] = row.V
	}

	ds.U.Min, ds.U.Max = bounds(ds.U.Array)
	ds.V.Min, ds.V.Max = bounds(ds.V.Array)

	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}

// WriteJSON encodes the dataset in its native JSON form.
func (d *Dataset) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encoding dataset: %w", err)
	}
	return nil
}

// WriteCSV writes one lon,lat,lev,u,v row per sample.
func (d *Dataset) WriteCSV(w io.Writer) error {
	dim := d.Dimension
	stride := dim.Lon * dim.Lat
	rows := make([]Row, 0, dim.Total())
	for lev := 0; lev < dim.Lev; lev++ {
		for lat := 0; lat < dim.Lat; lat++ {
			for lon := 0; lon < dim.Lon; lon++ {
				i := (lev*dim.Lat+lat)*dim.Lon + lon
				rows = append(rows, Row{
					Lon: axisValue(d.Lon, lon, dim.Lon, 1),
					Lat: axisValue(d.Lat, lat, dim.Lat, dim.Lon),
					Lev: axisValue(d.Lev, lev, dim.Lev, stride),
					U:   d.U.Array[i],
					V:   d.V.Array[i],
				})
			}
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("writing csv dataset: %w", err)
	}
	return nil
}

func distinct(vals []float64) []float64 {
	slices.Sort(vals)
	return slices.Compact(vals)
}

func indexOf(vals []float64) map[float64]int {
	m := make(map[float64]int, len(vals))
	for i, v := range vals {
		m[v] = i
	}
	return m
}

func filled(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// bounds returns the min and max of the finite values, or 0, 0 when there
// are none.
func bounds(vals []float64) (lo, hi float64) {
	finiteVals := make([]float64, 0, len(vals))
	for _, v := range vals {
		if finite(v) {
			finiteVals = append(finiteVals, v)
		}
	}
	if len(finiteVals) == 0 {
		return 0, 0
	}
	return floats.Min(finiteVals), floats.Max(finiteVals)
}
