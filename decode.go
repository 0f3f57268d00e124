package auditlog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
)

var (
	timeType       = reflect.TypeOf(time.Time{})
	dateType       = reflect.TypeOf(datatypes.Date{})
	fileType       = reflect.TypeOf(FieldFile{})
	jsonType       = reflect.TypeOf(datatypes.JSON{})
	jsonMapType    = reflect.TypeOf(datatypes.JSONMap{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
	scannerType    = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// timeLayouts are tried in order when a string has to become a time.Time.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTime accepts the forms FormatDate and FormatDateTime produce, plus RFC 3339.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("auditlog: cannot parse %q as time", s)
}

// assign stores raw, a JSON-decoded or driver-scanned value, into fv.
// fv must be settable.
func assign(fv reflect.Value, raw any) error {
	t := fv.Type()
	if raw == nil {
		fv.Set(reflect.Zero(t))
		return nil
	}

	switch {
	case t.Kind() == reflect.Pointer:
		elem := reflect.New(t.Elem())
		if err := assign(elem.Elem(), raw); err != nil {
			return err
		}
		fv.Set(elem)
		return nil
	case t == timeType:
		tm, err := toTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(tm))
		return nil
	case t == dateType:
		tm, err := toTime(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(datatypes.Date(tm)))
		return nil
	case t == fileType:
		fv.Set(reflect.ValueOf(FieldFile{Name: toString(raw)}))
		return nil
	case t == jsonType || t == jsonMapType || t == rawMessageType:
		return assignJSON(fv, raw)
	case reflect.PointerTo(t).Implements(scannerType):
		return scan(fv, raw)
	}

	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		fv.Set(rv)
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := toBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := toInt64(raw)
		if err != nil {
			return err
		}
		if fv.OverflowInt(n) {
			return fmt.Errorf("auditlog: %d overflows %v", n, t)
		}
		fv.SetInt(n)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := toUint64(raw)
		if err != nil {
			return err
		}
		if fv.OverflowUint(n) {
			return fmt.Errorf("auditlog: %d overflows %v", n, t)
		}
		fv.SetUint(n)
		return nil
	case reflect.Float32, reflect.Float64:
		f, err := toFloat64(raw)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
		return nil
	case reflect.String:
		fv.SetString(toString(raw))
		return nil
	}

	if rv.Type().ConvertibleTo(t) && rv.Kind() == t.Kind() {
		fv.Set(rv.Convert(t))
		return nil
	}
	return assignJSON(fv, raw)
}

// assignJSON round-trips raw through encoding/json. Only bytes are taken as
// JSON text; a string is always a JSON string, even when it looks like a
// number or an object.
func assignJSON(fv reflect.Value, raw any) error {
	b, ok := raw.([]byte)
	if !ok {
		var err error
		if b, err = json.Marshal(raw); err != nil {
			return fmt.Errorf("auditlog: failed to marshal %T: %w", raw, err)
		}
	}
	if err := json.Unmarshal(b, fv.Addr().Interface()); err != nil {
		return fmt.Errorf("auditlog: failed to decode into %v: %w", fv.Type(), err)
	}
	return nil
}

// scan feeds raw to the field's sql.Scanner, retrying strings as times for
// NullTime-like targets.
func scan(fv reflect.Value, raw any) error {
	sc := fv.Addr().Interface().(sql.Scanner)
	err := sc.Scan(scanSource(raw))
	if err == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		if tm, terr := ParseTime(s); terr == nil && sc.Scan(tm) == nil {
			return nil
		}
	}
	return fmt.Errorf("auditlog: failed to scan into %v: %w", fv.Type(), err)
}

func scanSource(raw any) any {
	switch x := raw.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return raw
		}
		return b
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return int64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	}
	return raw
}

func toTime(raw any) (time.Time, error) {
	switch x := raw.(type) {
	case time.Time:
		return x, nil
	case datatypes.Date:
		return time.Time(x), nil
	case string:
		return ParseTime(x)
	case []byte:
		return ParseTime(string(x))
	}
	return time.Time{}, fmt.Errorf("auditlog: cannot use %T as time", raw)
}

func toString(raw any) string {
	switch x := raw.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return FormatDateTime(x)
	}
	return fmt.Sprint(raw)
}

func toBool(raw any) (bool, error) {
	switch x := raw.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(x)
	}
	n, err := toInt64(raw)
	if err != nil {
		return false, fmt.Errorf("auditlog: cannot use %T as bool", raw)
	}
	return n != 0, nil
}

var errNotNumber = errors.New("not a number")

func toInt64(raw any) (int64, error) {
	switch x := raw.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("auditlog: %q: %w", x, errNotNumber)
		}
		return floatToInt(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("auditlog: %q: %w", x, errNotNumber)
		}
		return n, nil
	case []byte:
		return toInt64(string(x))
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, fmt.Errorf("auditlog: %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return floatToInt(rv.Float())
	}
	return 0, fmt.Errorf("auditlog: %T: %w", raw, errNotNumber)
}

func toUint64(raw any) (uint64, error) {
	switch x := raw.(type) {
	case json.Number:
		if n, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return n, nil
		}
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("auditlog: %q: %w", x, errNotNumber)
		}
		return n, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	}
	n, err := toInt64(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("auditlog: %d is negative", n)
	}
	return uint64(n), nil
}

func toFloat64(raw any) (float64, error) {
	switch x := raw.(type) {
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("auditlog: %q: %w", x, errNotNumber)
		}
		return f, nil
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), nil
	}
	return 0, fmt.Errorf("auditlog: %T: %w", raw, errNotNumber)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("auditlog: %v is not an integer", f)
	}
	return int64(f), nil
}
