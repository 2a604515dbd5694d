package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON. It is the only
// serialization used for content addresses and for log payloads.
//
// Differences from encoding/json:
//   - object keys sorted by UTF-16 code units
//   - no HTML escaping; U+2028/U+2029 emitted literally
//   - strings NFC normalized
//   - floats and null rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case String:
		return writeCanonicalString(buf, string(val))
	case string:
		return writeCanonicalString(buf, val)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		return writeCanonicalObject(buf, val.SortedKeys(), func(k string) any { return val[k] })
	case map[string]any:
		keys := make(Object, len(val))
		for k := range val {
			keys[k] = Bool(true)
		}
		return writeCanonicalObject(buf, keys.SortedKeys(), func(k string) any { return val[k] })
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, keys []string, get func(string) any) error {
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, get(k)); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("string %q is not valid UTF-8", s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// run of backslashes is literal text and stays untouched.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' {
			out = append(out, data[i])
			continue
		}
		if i+5 < len(data) && data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' &&
			data[i+4] == '2' && (data[i+5] == '8' || data[i+5] == '9') {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// Any other escape: copy the backslash and the escaped byte together.
		out = append(out, data[i])
		if i+1 < len(data) {
			out = append(out, data[i+1])
			i++
		}
	}
	return out
}
