package auditlog

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"iter"
	"reflect"
	"time"

	"gorm.io/datatypes"
)

const (
	// DateLayout renders date columns.
	DateLayout = "2006-01-02"
	// DateTimeLayout renders datetime columns; microseconds are appended when non-zero.
	DateTimeLayout = "2006-01-02T15:04:05-07:00"

	dateTimeMicroLayout = "2006-01-02T15:04:05.000000-07:00"
)

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatDateTime renders t as ISO-8601 with a numeric offset, e.g.
// 2024-01-02T03:04:05+00:00.
func FormatDateTime(t time.Time) string {
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format(dateTimeMicroLayout)
	}
	return t.Format(DateTimeLayout)
}

// convertValue turns v into something encoding/json renders the same way
// every time. asDate selects the date form for time values.
func convertValue(v any, asDate bool) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		return convertValue(rv.Elem().Interface(), asDate)
	}

	switch x := v.(type) {
	case time.Time:
		if asDate {
			return FormatDate(x), nil
		}
		return FormatDateTime(x), nil
	case datatypes.Date:
		return FormatDate(time.Time(x)), nil
	case FieldFile:
		return x.Name, nil
	case iter.Seq[any]:
		return collect(x, asDate)
	case func(func(any) bool):
		return collect(x, asDate)
	case json.RawMessage:
		return decodeRawJSON(x), nil
	case datatypes.JSON:
		return decodeRawJSON(x), nil
	case []byte:
		return x, nil
	case map[string]any:
		return convertMap(x)
	case datatypes.JSONMap:
		return convertMap(x)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return nil, err
		}
		return convertValue(dv, asDate)
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		out := make(map[string]any, rv.Len())
		it := rv.MapRange()
		for it.Next() {
			cv, err := convertValue(it.Value().Interface(), false)
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", it.Key().String(), err)
			}
			out[it.Key().String()] = cv
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			cv, err := convertValue(rv.Index(i).Interface(), asDate)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = cv
		}
		return out, nil
	}
	return v, nil
}

// convertMap converts every value of m into a new map.
func convertMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		cv, err := convertValue(v, false)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = cv
	}
	return out, nil
}

func collect(seq iter.Seq[any], asDate bool) ([]any, error) {
	out := []any{}
	for item := range seq {
		cv, err := convertValue(item, asDate)
		if err != nil {
			return nil, err
		}
		out = append(out, cv)
	}
	return out, nil
}

// decodeRawJSON keeps invalid JSON as a string instead of failing the snapshot.
func decodeRawJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	var js any
	if err := json.Unmarshal(b, &js); err != nil {
		return string(b)
	}
	return js
}
