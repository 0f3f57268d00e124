package auditlog

import (
	"database/sql"
	"errors"
	"reflect"

	"gorm.io/gorm/schema"
)

// affectedResult implements sql.Result for Exec-like semantics.
type affectedResult struct{ n int64 }

func newAffectedRows(n int) sql.Result {
	return affectedResult{n: int64(n)}
}

func (r affectedResult) LastInsertId() (int64, error) {
	return 0, errors.New("not supported")
}

func (r affectedResult) RowsAffected() (int64, error) {
	return r.n, nil
}

// scanAll consumes every row from *sql.Rows into maps keyed by column.
func scanAll(rows *sql.Rows) ([]map[string]any, int, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, 0, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, 0, err
		}
		out = append(out, rowToMap(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, len(out), nil
}

// rowToMap converts a single row (columns + values) to a map.
func rowToMap(cols []string, vals []any) map[string]any {
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		m[c] = vals[i]
	}
	return m
}

// normalizeRow shapes driver values by the field they land in. JSON columns
// arrive as text or bytes and are decoded, so a JSON string stays a string.
// Byte fields keep bytes; any other bytes become text.
func normalizeRow(s *schema.Schema, row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for c, v := range row {
		var t reflect.Type
		if f := s.LookUpField(c); f != nil {
			t = f.FieldType
			for t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
		}
		switch {
		case t == jsonType || t == jsonMapType || t == rawMessageType || isComposite(t):
			switch x := v.(type) {
			case []byte:
				v = decodeRawJSON(x)
			case string:
				v = decodeRawJSON([]byte(x))
			}
		case isBytes(t):
			if x, ok := v.(string); ok {
				v = []byte(x)
			}
		default:
			if x, ok := v.([]byte); ok {
				v = string(x)
			}
		}
		out[c] = v
	}
	return out
}

func isBytes(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8
}

// isComposite reports maps and non-byte slices, which gorm stores as JSON
// through a serializer.
func isComposite(t reflect.Type) bool {
	if t == nil {
		return false
	}
	return t.Kind() == reflect.Map || (t.Kind() == reflect.Slice && !isBytes(t))
}
