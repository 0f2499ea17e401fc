package record

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Format renders any value as a display string. It never fails: nil becomes
// "", scalars their string form, slices a ", "-joined list of their elements,
// and anything else its JSON encoding (falling back to fmt when encoding
// fails).
func Format(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string, bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return String(t)
	case []any:
		return joinElems(len(t), func(i int) any { return t[i] })
	case []string:
		return strings.Join(t, ", ")
	case fmt.Stringer:
		return t.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			return string(rv.Bytes())
		}
		return joinElems(rv.Len(), func(i int) any { return rv.Index(i).Interface() })
	}

	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// joinElems formats n elements and joins them. Nested nil elements render as
// "" so [1, null, 2] becomes "1, , 2".
func joinElems(n int, at func(int) any) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = Format(at(i))
	}
	return strings.Join(parts, ", ")
}
