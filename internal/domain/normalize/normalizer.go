// Package normalize converts store-native row values into JSON-safe structures.
package normalize

import (
	"bytes"
	"database/sql/driver"
	"encoding"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxSafeInteger is the largest integer a JSON number can carry without precision loss in common decoders.
const maxSafeInteger = 1<<53 - 1

// Rows turns columns and row values into a list of column-keyed records.
func Rows(columns []string, values [][]any) []map[string]any {
	out := make([]map[string]any, 0, len(values))
	for _, row := range values {
		rec := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(row) {
				rec[col] = Value(row[i])
			} else {
				rec[col] = nil
			}
		}
		out = append(out, rec)
	}
	return out
}

// Value converts a single store value. Timestamps become RFC 3339 strings, integers
// outside the safe JSON range and arbitrary-precision numbers become strings, byte
// strings become text or base64, and containers are converted recursively.
func Value(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string:
		return x
	case int:
		return integer(int64(x))
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return integer(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint:
		return unsigned(uint64(x))
	case uint64:
		return unsigned(x)
	case float32:
		return float(float64(x))
	case float64:
		return float(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		if x.IsInt64() {
			return integer(x.Int64())
		}
		return x.String()
	case *big.Float:
		if x == nil {
			return nil
		}
		return x.Text('g', -1)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case time.Duration:
		return x.String()
	case [16]byte:
		return uuid.UUID(x).String()
	case uuid.UUID:
		return x.String()
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(x, &decoded); err != nil {
			return string(x)
		}
		return Value(decoded)
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return base64.StdEncoding.EncodeToString(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Value(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Value(item)
		}
		return out
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return fmt.Sprint(x)
		}
		if dv == nil {
			return nil
		}
		if _, same := dv.(driver.Valuer); same {
			return fmt.Sprint(dv)
		}
		return Value(dv)
	case encoding.TextMarshaler:
		text, err := x.MarshalText()
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(text)
	case fmt.Stringer:
		return x.String()
	}
	return reflected(v)
}

func integer(n int64) any {
	if n > maxSafeInteger || n < -maxSafeInteger {
		return fmt.Sprintf("%d", n)
	}
	return n
}

func unsigned(n uint64) any {
	if n > maxSafeInteger {
		return fmt.Sprintf("%d", n)
	}
	return int64(n)
}

func float(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Sprint(f)
	}
	return f
}

// reflected handles typed slices, maps and pointers the type switch does not name.
func reflected(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return Value(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = Value(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Value(iter.Value().Interface())
		}
		return out
	case reflect.Struct:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return fmt.Sprint(v)
		}
		return decoded
	}
	return fmt.Sprint(v)
}

// JSON encodes normalized output without HTML escaping.
func JSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
