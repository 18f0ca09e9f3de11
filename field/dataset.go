// Package field holds the immutable vector-field snapshot that drives the
// particle simulation: the raw dataset, its validation, the grid layout used
// to address it as a texture, and CPU-side sampling.
package field

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidDataset is wrapped by every validation failure.
var ErrInvalidDataset = errors.New("invalid dataset")

// Dimension is the number of samples along each axis.
type Dimension struct {
	Lon int `json:"lon"`
	Lat int `json:"lat"`
	Lev int `json:"lev"`
}

// Total returns Lon*Lat*Lev.
func (d Dimension) Total() int {
	return d.Lon * d.Lat * d.Lev
}

// Axis describes one coordinate axis. Array may be empty (coordinates are
// implied by Min/Max), hold one value per axis sample, or one value per
// grid sample.
type Axis struct {
	Array []float64 `json:"array,omitempty"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
}

// Component is one vector component in m/s, flattened lon-fastest then lat
// then lev. Min/Max are the declared bounds.
type Component struct {
	Array []float64 `json:"array"`
	Min   float64   `json:"min"`
	Max   float64   `json:"max"`
}

// Dataset is the raw input handed to the engine.
type Dataset struct {
	Dimension Dimension `json:"dimension"`
	Lon       Axis      `json:"lon"`
	Lat       Axis      `json:"lat"`
	Lev       Axis      `json:"lev"`
	U         Component `json:"u"`
	V         Component `json:"v"`
}

// ValidationError describes why a dataset was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid dataset: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidDataset
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks the dataset's structural invariants.
func (d *Dataset) Validate() error {
	dim := d.Dimension
	if dim.Lon < 1 || dim.Lat < 1 || dim.Lev < 1 {
		return invalid("dimension", "all counts must be >= 1, got lon=%d lat=%d lev=%d", dim.Lon, dim.Lat, dim.Lev)
	}
	total := dim.Total()

	if len(d.U.Array) != total {
		return invalid("u", "expected %d samples, got %d", total, len(d.U.Array))
	}
	if len(d.V.Array) != total {
		return invalid("v", "expected %d samples, got %d", total, len(d.V.Array))
	}

	axes := []struct {
		name  string
		axis  Axis
		count int
	}{
		{"lon", d.Lon, dim.Lon},
		{"lat", d.Lat, dim.Lat},
		{"lev", d.Lev, dim.Lev},
	}
	for _, a := range axes {
		if err := validateAxis(a.name, a.axis, a.count, total); err != nil {
			return err
		}
	}

	if d.Lat.Min < -90 || d.Lat.Max > 90 {
		return invalid("lat", "bounds [%v, %v] outside [-90, 90]", d.Lat.Min, d.Lat.Max)
	}
	if d.Lon.Max-d.Lon.Min > 360 {
		return invalid("lon", "span %v exceeds 360", d.Lon.Max-d.Lon.Min)
	}

	for _, c := range []struct {
		name string
		comp Component
	}{{"u", d.U}, {"v", d.V}} {
		if !finite(c.comp.Min) || !finite(c.comp.Max) {
			return invalid(c.name, "bounds must be finite")
		}
		if c.comp.Min > c.comp.Max {
			return invalid(c.name, "min %v greater than max %v", c.comp.Min, c.comp.Max)
		}
	}
	return nil
}

func validateAxis(name string, a Axis, count, total int) error {
	if !finite(a.Min) || !finite(a.Max) {
		return invalid(name, "bounds must be finite")
	}
	if a.Min > a.Max {
		return invalid(name, "min %v greater than max %v", a.Min, a.Max)
	}
	if count > 1 && a.Min == a.Max {
		return invalid(name, "%d samples over a zero-width range", count)
	}
	switch len(a.Array) {
	case 0, count, total:
		return nil
	default:
		return invalid(name, "array length %d is neither 0, %d nor %d", len(a.Array), count, total)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
