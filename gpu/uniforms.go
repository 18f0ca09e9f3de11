package gpu

import "github.com/pthm-cable/currents/geo"

// UniformReader reads typed uniform values, remembering the first failure so
// a Prepare can read everything and check once.
type UniformReader struct {
	program string
	values  map[string]any
	err     error
}

// NewUniformReader wraps values for the named program.
func NewUniformReader(program string, values map[string]any) *UniformReader {
	return &UniformReader{program: program, values: values}
}

// Err returns the first failure, if any.
func (r *UniformReader) Err() error {
	return r.err
}

func (r *UniformReader) lookup(name, want string) (any, bool) {
	v, ok := r.values[name]
	if !ok && r.err == nil {
		r.err = &UniformError{Program: r.program, Name: name, Want: want}
	}
	return v, ok
}

func (r *UniformReader) fail(name, want string, got any) {
	if r.err == nil {
		r.err = &UniformError{Program: r.program, Name: name, Want: want, Got: got}
	}
}

// Float reads a float64 (float32 and int are accepted).
func (r *UniformReader) Float(name string) float64 {
	v, ok := r.lookup(name, "float")
	if !ok {
		return 0
	}
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	case int:
		return float64(f)
	}
	r.fail(name, "float", v)
	return 0
}

// Int reads an int.
func (r *UniformReader) Int(name string) int {
	v, ok := r.lookup(name, "int")
	if !ok {
		return 0
	}
	i, isInt := v.(int)
	if !isInt {
		r.fail(name, "int", v)
	}
	return i
}

// Vec2 reads a [2]float64.
func (r *UniformReader) Vec2(name string) [2]float64 {
	v, ok := r.lookup(name, "vec2")
	if !ok {
		return [2]float64{}
	}
	vec, isVec := v.([2]float64)
	if !isVec {
		r.fail(name, "vec2", v)
	}
	return vec
}

// Texel reads a colour.
func (r *UniformReader) Texel(name string) Texel {
	v, ok := r.lookup(name, "texel")
	if !ok {
		return Texel{}
	}
	t, isTexel := v.(Texel)
	if !isTexel {
		r.fail(name, "texel", v)
	}
	return t
}

// Texels reads a colour list; a missing value yields nil without error.
func (r *UniformReader) Texels(name string) []Texel {
	v, ok := r.values[name]
	if !ok || v == nil {
		return nil
	}
	ts, isTexels := v.([]Texel)
	if !isTexels {
		r.fail(name, "[]texel", v)
	}
	return ts
}

// Mat4 reads a matrix.
func (r *UniformReader) Mat4(name string) geo.Mat4 {
	v, ok := r.lookup(name, "mat4")
	if !ok {
		return geo.Mat4{}
	}
	m, isMat := v.(geo.Mat4)
	if !isMat {
		r.fail(name, "mat4", v)
	}
	return m
}

// Any reads an opaque value for program-specific types.
func (r *UniformReader) Any(name string) any {
	v, _ := r.lookup(name, "value")
	return v
}
