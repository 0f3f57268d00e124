package auditlog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm/schema"
)

// ModelToMap serializes obj into a JSON-safe map.
//
// Columns are keyed by their column name. A belongs-to foreign key is keyed by
// the relation instead ("author" rather than "author_id"), and many-to-many
// relations become lists of primary keys. Fields tagged `auditlog:"-"` are
// left out.
func (r *Registry) ModelToMap(ctx context.Context, obj any) (map[string]any, error) {
	return r.modelToMap(ctx, obj, true)
}

// modelToMap leaves many-to-many relations out unless withRelations is set.
func (r *Registry) modelToMap(ctx context.Context, obj any, withRelations bool) (map[string]any, error) {
	ptr, err := addressable(obj)
	if err != nil {
		return nil, err
	}
	s, err := r.Schema(ptr.Interface())
	if err != nil {
		return nil, err
	}
	rv := ptr.Elem()

	renamed := make(map[*schema.Field]string, len(s.Relationships.BelongsTo))
	for _, rel := range s.Relationships.BelongsTo {
		if fk := singleForeignKey(rel); fk != nil {
			renamed[fk] = r.relationKey(rel)
		}
	}

	out := make(map[string]any, len(s.Fields))
	for _, f := range s.Fields {
		if f.DBName == "" || excluded(f) {
			continue
		}
		key := f.DBName
		if k, ok := renamed[f]; ok {
			key = k
		}
		v, _ := f.ValueOf(ctx, rv)
		cv, err := convertValue(v, isDateField(f))
		if err != nil {
			return nil, fmt.Errorf("auditlog: failed to convert %s.%s: %w", s.Name, f.Name, err)
		}
		out[key] = cv
	}

	if !withRelations {
		return out, nil
	}
	for _, rel := range s.Relationships.Many2Many {
		if excluded(rel.Field) {
			continue
		}
		keys, err := r.relatedKeys(ctx, ptr, rel)
		if err != nil {
			return nil, err
		}
		out[r.relationKey(rel)] = keys
	}
	return out, nil
}

// relatedKeys lists the primary keys of a many-to-many relation, loading it
// through the bound connection when there is one.
func (r *Registry) relatedKeys(ctx context.Context, ptr reflect.Value, rel *schema.Relationship) ([]any, error) {
	pk := rel.FieldSchema.PrioritizedPrimaryField
	if pk == nil {
		return nil, fmt.Errorf("auditlog: %s has no primary key", rel.FieldSchema.Name)
	}

	var items reflect.Value
	if r.db != nil {
		dest := reflect.New(reflect.SliceOf(rel.FieldSchema.ModelType))
		if err := r.db.WithContext(ctx).Model(ptr.Interface()).Association(rel.Name).Find(dest.Interface()); err != nil {
			return nil, fmt.Errorf("auditlog: failed to load %s.%s: %w", rel.Schema.Name, rel.Name, err)
		}
		items = dest.Elem()
	} else {
		items = reflect.Indirect(rel.Field.ReflectValueOf(ctx, ptr.Elem()))
	}

	out := make([]any, 0, items.Len())
	for i := 0; i < items.Len(); i++ {
		item := reflect.Indirect(items.Index(i))
		if !item.IsValid() {
			continue
		}
		v, _ := pk.ValueOf(ctx, item)
		cv, err := convertValue(v, false)
		if err != nil {
			return nil, fmt.Errorf("auditlog: failed to convert %s key: %w", rel.Name, err)
		}
		out = append(out, cv)
	}
	return out, nil
}

func (r *Registry) relationKey(rel *schema.Relationship) string {
	return r.namer.ColumnName("", rel.Name)
}

// singleForeignKey returns the local foreign key of a belongs-to relation
// backed by exactly one column.
func singleForeignKey(rel *schema.Relationship) *schema.Field {
	if rel.Type != schema.BelongsTo || len(rel.References) != 1 {
		return nil
	}
	ref := rel.References[0]
	if ref.OwnPrimaryKey || ref.ForeignKey == nil || ref.ForeignKey.DBName == "" {
		return nil
	}
	return ref.ForeignKey
}

func excluded(f *schema.Field) bool {
	return tagHas(f, "-")
}

func isDateField(f *schema.Field) bool {
	return strings.EqualFold(f.TagSettings["TYPE"], "date") ||
		strings.EqualFold(string(f.DataType), "date") ||
		tagHas(f, "date")
}

func tagHas(f *schema.Field, opt string) bool {
	if f == nil {
		return false
	}
	for _, part := range strings.Split(f.StructField.Tag.Get("auditlog"), ",") {
		if strings.TrimSpace(part) == opt {
			return true
		}
	}
	return false
}

// addressable returns a pointer to obj, copying it when obj is a struct value.
func addressable(obj any) (reflect.Value, error) {
	rv := reflect.ValueOf(obj)
	if !rv.IsValid() {
		return reflect.Value{}, errors.New("auditlog: nil object")
	}
	if rv.Kind() == reflect.Pointer {
		for rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Pointer {
			rv = rv.Elem()
		}
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("auditlog: nil %T", obj)
		}
		if rv.Elem().Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("auditlog: cannot serialize %T", obj)
		}
		return rv, nil
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("auditlog: cannot serialize %T", obj)
	}
	ptr := reflect.New(rv.Type())
	ptr.Elem().Set(rv)
	return ptr, nil
}

// primaryKeyString renders the model's primary key, or "" when it is unset.
func primaryKeyString(ctx context.Context, s *schema.Schema, rv reflect.Value) string {
	pk := s.PrioritizedPrimaryField
	if pk == nil {
		return ""
	}
	v, zero := pk.ValueOf(ctx, rv)
	if zero || v == nil {
		return ""
	}
	cv, err := convertValue(v, false)
	if err != nil || cv == nil {
		return ""
	}
	return fmt.Sprint(cv)
}
