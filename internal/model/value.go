package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
	"unicode/utf8"
)

// Value is a sealed interface over the attribute kinds a document may hold.
// Only String, Int, Bool, Array and Object implement it.
type Value interface {
	value()
}

// String is a string attribute value.
type String string

func (String) value() {}

// Int is an integer attribute value. Always int64, never float.
type Int int64

func (Int) value() {}

// Bool is a boolean attribute value.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Object maps attribute names to values.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) value() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's native string ordering is UTF-8 and differs for supplementary planes.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FromAny converts a decoded YAML/JSON/CUE value into a Value.
// Rejects nulls and floats; integral floats produced by generic decoders
// (e.g. 3.0 from encoding/json) are rejected as well to keep hashing exact.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a supported attribute value")
	case Value:
		if err := validateValue(val); err != nil {
			return nil, err
		}
		return val, nil
	case string:
		return validString(val)
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("integer %d overflows int64", val)
		}
		return Int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not supported attribute values: %s", val)
		}
		return Int(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported attribute values: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = ev
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			if !utf8.ValidString(k) {
				return nil, fmt.Errorf("attribute name %q is not valid UTF-8", k)
			}
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = ev
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", v)
	}
}

func validString(s string) (Value, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("string %q is not valid UTF-8", s)
	}
	return String(s), nil
}

// ObjectFromMap converts a generic map into an Object.
func ObjectFromMap(m map[string]any) (Object, error) {
	v, err := FromAny(m)
	if err != nil {
		return nil, err
	}
	return v.(Object), nil
}

// validateValue walks v and rejects nil members and non-UTF-8 strings or
// keys.
func validateValue(v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is not a supported attribute value")
	case String:
		if !utf8.ValidString(string(val)) {
			return fmt.Errorf("string %q is not valid UTF-8", string(val))
		}
		return nil
	case Int, Bool:
		return nil
	case Array:
		for i, elem := range val {
			if err := validateValue(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	case Object:
		for k, elem := range val {
			if !utf8.ValidString(k) {
				return fmt.Errorf("attribute name %q is not valid UTF-8", k)
			}
			if err := validateValue(elem); err != nil {
				return fmt.Errorf("%q: %w", k, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported attribute value type %T", v)
	}
}

// ToAny converts a Value back into plain Go values (for output encoders).
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON decodes an object, keeping integers exact via json.Number.
func (obj *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	o, err := ObjectFromMap(raw)
	if err != nil {
		return err
	}
	*obj = o
	return nil
}

// MarshalJSON encodes the object in canonical form.
func (obj Object) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(obj)
}
