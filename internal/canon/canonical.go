package canon

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Canonicalize converts v into its canonical Value form: every string (keys
// included) NFC normalized, nulls kept, sequence order preserved.
// Key ordering is applied at serialization time by Marshal, so two logically
// equal inputs always produce identical bytes regardless of construction order.
//
// Canonicalize is idempotent: Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(v any) (Value, error) {
	val, err := From(v)
	if err != nil {
		return nil, err
	}
	return normalize(val)
}

func normalize(v Value) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Null, Int, Bool:
		return val, nil
	case String:
		return String(norm.NFC.String(string(val))), nil
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = n
		}
		return out, nil
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			n, err := normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			nk := norm.NFC.String(k)
			if _, dup := out[nk]; dup {
				return nil, fmt.Errorf("keys collide after NFC normalization: %q", nk)
			}
			out[nk] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// Marshal produces RFC 8785 canonical JSON for v.
// This is the only serialization used for structural and integrity hashes.
func Marshal(v any) ([]byte, error) {
	val, err := Canonicalize(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeValue(&buf, val); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case String:
		writeString(buf, string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, k)
			buf.WriteByte(':')
			if err := writeValue(buf, val[k]); err != nil {
				return fmt.Errorf("value for key %q: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported value type: %T", v)
	}
	return nil
}

// writeString escapes per RFC 8785: only quote, backslash and control
// characters are escaped. No HTML escaping, U+2028/U+2029 stay literal.
func writeString(buf *bytes.Buffer, s string) {
	const hex = "0123456789abcdef"

	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(s[i:])
			if r == utf8.RuneError && size == 1 {
				buf.WriteString(`�`)
			} else {
				buf.WriteString(s[i : i+size])
			}
			i += size
			continue
		}
		switch c {
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
			if c < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hex[c>>4])
				buf.WriteByte(hex[c&0xf])
			} else {
				buf.WriteByte(c)
			}
		}
		i++
	}
	buf.WriteByte('"')
}
