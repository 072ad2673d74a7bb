package signatures

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

const (
	maxDepth   = 100
	maxSafeInt = 1<<53 - 1
)

var (
	// ErrTooDeep is returned for values nested deeper than maxDepth, including cyclic maps.
	ErrTooDeep = errors.New("value nested too deeply or cyclic")
	// ErrNumber is returned for numbers outside the canonical integer range.
	ErrNumber = errors.New("number is not a canonical integer")
)

// Canonical returns the canonical JSON encoding of v.
//
// v may be a decoded JSON value (map[string]any, []any, string, bool, nil, float64,
// json.Number), raw JSON bytes, or any value encoding/json can marshal. Typed Go values
// nested inside maps and slices are accepted too.
func Canonical(v any) ([]byte, error) {
	norm, err := normalize(v, 0)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encode(&buf, norm, 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalize turns raw JSON and arbitrary Go values into the generic decoded form at
// every depth.
func normalize(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	switch t := v.(type) {
	case nil, bool, string, float64, json.Number, int, int64, int32, uint32, uint64:
		return t, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			n, err := normalize(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			n, err := normalize(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case json.RawMessage:
		return decode(t)
	case []byte:
		return decode(t)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return decode(raw)
	}
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v any, depth int) error {
	if depth > maxDepth {
		return ErrTooDeep
	}
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		return writeString(buf, t)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) || math.Abs(t) > maxSafeInt {
			return fmt.Errorf("%w: %v", ErrNumber, t)
		}
		buf.WriteString(strconv.FormatInt(int64(t), 10))
	case json.Number:
		n, err := strconv.ParseInt(t.String(), 10, 64)
		if err != nil || n > maxSafeInt || n < -maxSafeInt {
			return fmt.Errorf("%w: %s", ErrNumber, t)
		}
		buf.WriteString(strconv.FormatInt(n, 10))
	case int:
		return writeInt(buf, int64(t))
	case int32:
		return writeInt(buf, int64(t))
	case int64:
		return writeInt(buf, t)
	case uint32:
		return writeInt(buf, int64(t))
	case uint64:
		if t > maxSafeInt {
			return fmt.Errorf("%w: %d", ErrNumber, t)
		}
		return writeInt(buf, int64(t))
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, e, depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, t[k], depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

func writeInt(buf *bytes.Buffer, n int64) error {
	if n > maxSafeInt || n < -maxSafeInt {
		return fmt.Errorf("%w: %d", ErrNumber, n)
	}
	buf.WriteString(strconv.FormatInt(n, 10))
	return nil
}

// writeString escapes only '"', '\\' and control characters.
func writeString(buf *bytes.Buffer, s string) error {
	if !utf8.ValidString(s) {
		return errors.New("string is not valid UTF-8")
	}
	const hex = "0123456789abcdef"
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[r>>4])
				buf.WriteByte(hex[r&0xf])
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
	return nil
}
