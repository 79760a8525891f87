package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MarshalJSON writes the fields as one object, keys in field order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range m.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		val, err := json.Marshal(JSONValue(m.values[name]))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// JSONValue converts a driver value into something encoding/json renders
// the way a reader expects:
//
//   - []byte becomes a string when it is valid UTF-8 (MySQL text columns
//     arrive as bytes), otherwise it stays base64
//   - [16]byte becomes a canonical UUID (pgx uuid columns)
//   - NaN and ±Inf floats become the strings "NaN", "Infinity", "-Infinity"
//
// Everything else, including json.Marshaler implementations and time.Time,
// passes through.
func JSONValue(v any) any {
	switch x := v.(type) {
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return x
	case [16]byte:
		return uuid.UUID(x).String()
	case float64:
		return jsonFloat(x)
	case float32:
		return jsonFloat(float64(x))
	default:
		return v
	}
}

func jsonFloat(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	default:
		return f
	}
}
