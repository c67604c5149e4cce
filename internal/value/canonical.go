package value

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for content hashing and
// golden-trace comparison. This is the ONLY serialization used where
// byte-identical output across runs is required (snapshot hashes,
// determinism goldens).
//
// Rules:
//  1. Object keys sorted lexicographically.
//  2. Strings NFC-normalized, minimal escaping, no HTML escaping.
//  3. Floats rendered with strconv shortest round-trip form.
//  4. Skip renders as {"$skip":true}, Flushed as {"$flushed":<inner>},
//     item keys as plain integers - the encoding is total over Value.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil value in canonical encoding")
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 64))
	case Text:
		writeCanonicalString(buf, string(val))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Unit:
		buf.WriteString(`{"$unit":true}`)
	case Skip:
		buf.WriteString(`{"$skip":true}`)
	case Key:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case Flushed:
		buf.WriteString(`{"$flushed":`)
		if err := writeCanonical(buf, val.Inner); err != nil {
			return err
		}
		buf.WriteByte('}')
	case Object:
		buf.WriteByte('{')
		for i, k := range val.SortedKeys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeCanonicalString(buf, k)
			buf.WriteByte(':')
			fv, _ := val.Get(k)
			if err := writeCanonical(buf, fv); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case List:
		buf.WriteByte('[')
		for i, it := range val.Items() {
			if i > 0 {
				buf.WriteByte(',')
			}
			fmt.Fprintf(buf, `{"key":%d,"value":`, uint64(it.Key))
			if err := writeCanonical(buf, it.Value); err != nil {
				return err
			}
			buf.WriteByte('}')
		}
		buf.WriteByte(']')
	default:
		return fmt.Errorf("unsupported value type %T in canonical encoding", v)
	}
	return nil
}

// writeCanonicalString writes an NFC-normalized JSON string with
// minimal escaping (no HTML escaping - < > & pass through raw).
func writeCanonicalString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
