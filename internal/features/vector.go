package features

import (
	"bytes"
	"encoding/json"
)

// Value is a numeric attribute or a categorical label.
type Value struct {
	Number float64
	Label  string
	// Categorical marks Label as the meaningful field.
	Categorical bool
}

// Vector is an insertion-ordered set of named attributes.
type Vector struct {
	keys   []string
	values map[string]Value
}

// NewVector returns an empty vector.
func NewVector() *Vector {
	return &Vector{values: make(map[string]Value)}
}

// SetNumber sets a numeric attribute, keeping its original position when overwritten.
func (v *Vector) SetNumber(name string, x float64) {
	v.set(name, Value{Number: x})
}

// SetLabel sets a categorical attribute.
func (v *Vector) SetLabel(name, label string) {
	v.set(name, Value{Label: label, Categorical: true})
}

func (v *Vector) set(name string, val Value) {
	if _, ok := v.values[name]; !ok {
		v.keys = append(v.keys, name)
	}
	v.values[name] = val
}

// Get returns the attribute and whether it is present.
func (v *Vector) Get(name string) (Value, bool) {
	val, ok := v.values[name]
	return val, ok
}

// Number returns a numeric attribute. Categorical attributes report false.
func (v *Vector) Number(name string) (float64, bool) {
	val, ok := v.values[name]
	if !ok || val.Categorical {
		return 0, false
	}
	return val.Number, true
}

// Label returns a categorical attribute.
func (v *Vector) Label(name string) (string, bool) {
	val, ok := v.values[name]
	if !ok || !val.Categorical {
		return "", false
	}
	return val.Label, true
}

// Has reports whether name is set.
func (v *Vector) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

// Keys returns attribute names in insertion order.
func (v *Vector) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len is the number of attributes.
func (v *Vector) Len() int { return len(v.keys) }

// MarshalJSON writes the attributes as an object in insertion order.
func (v *Vector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range v.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val := v.values[k]
		var raw []byte
		if val.Categorical {
			raw, err = json.Marshal(val.Label)
		} else {
			raw, err = json.Marshal(val.Number)
		}
		if err != nil {
			return nil, err
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
