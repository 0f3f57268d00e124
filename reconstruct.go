package auditlog

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"gorm.io/gorm/schema"
)

// ObjectFromLog builds an in-memory object from the snapshot stored in l.
// The result is a pointer to a new value of the registered model, or nil when
// the log carries no snapshot. An unknown ObjectName yields *ModelNotFoundError.
func (r *Registry) ObjectFromLog(ctx context.Context, l *Log) (any, error) {
	data, err := l.Data()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return r.ObjectFromMap(ctx, l.ObjectName, data)
}

// ObjectFromMap builds an object of the model registered as logName from a
// decoded snapshot.
func (r *Registry) ObjectFromMap(ctx context.Context, logName string, data map[string]any) (any, error) {
	m, err := r.ModelByLogName(logName)
	if err != nil {
		return nil, err
	}
	return r.Decode(ctx, m, data)
}

// Decode fills a new instance of m from data. Keys may be column names,
// belongs-to relation names or many-to-many relation names; anything else is
// ignored.
func (r *Registry) Decode(ctx context.Context, m *Model, data map[string]any) (any, error) {
	ptr := m.New()
	if err := r.decode(ctx, m.Schema, ptr.Elem(), data); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

func (r *Registry) decode(ctx context.Context, s *schema.Schema, rv reflect.Value, data map[string]any) error {
	belongsTo := make(map[string]*schema.Field, len(s.Relationships.BelongsTo))
	for _, rel := range s.Relationships.BelongsTo {
		if fk := singleForeignKey(rel); fk != nil {
			belongsTo[r.relationKey(rel)] = fk
		}
	}
	many2many := make(map[string]*schema.Relationship, len(s.Relationships.Many2Many))
	for _, rel := range s.Relationships.Many2Many {
		many2many[r.relationKey(rel)] = rel
	}

	// the primary key goes first so relations can be resolved against it
	pk := s.PrioritizedPrimaryField
	if pk != nil {
		if v, ok := data[pk.DBName]; ok {
			if err := setField(ctx, s, pk, rv, v); err != nil {
				return err
			}
		}
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if pk != nil && key == pk.DBName {
			continue
		}
		value := data[key]
		if fk, ok := belongsTo[key]; ok {
			if err := setField(ctx, s, fk, rv, value); err != nil {
				return err
			}
			continue
		}
		if f, ok := s.FieldsByDBName[key]; ok {
			if err := setField(ctx, s, f, rv, value); err != nil {
				return err
			}
			continue
		}
		if rel, ok := many2many[key]; ok {
			if err := setStubs(ctx, rel, rv, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func setField(ctx context.Context, s *schema.Schema, f *schema.Field, rv reflect.Value, value any) error {
	if err := assign(f.ReflectValueOf(ctx, rv), value); err != nil {
		return fmt.Errorf("auditlog: failed to set %s.%s: %w", s.Name, f.Name, err)
	}
	return nil
}

// setStubs fills a many-to-many field with elements that carry only their
// primary key.
func setStubs(ctx context.Context, rel *schema.Relationship, rv reflect.Value, value any) error {
	if value == nil {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		return fmt.Errorf("auditlog: %s.%s expects a list, got %T", rel.Schema.Name, rel.Name, value)
	}
	pk := rel.FieldSchema.PrioritizedPrimaryField
	if pk == nil {
		return fmt.Errorf("auditlog: %s has no primary key", rel.FieldSchema.Name)
	}

	fv := rel.Field.ReflectValueOf(ctx, rv)
	sliceType := fv.Type()
	if sliceType.Kind() == reflect.Pointer {
		sliceType = sliceType.Elem()
	}
	elemType := sliceType.Elem()

	out := reflect.MakeSlice(sliceType, 0, len(items))
	for _, item := range items {
		elem := reflect.New(indirectType(elemType))
		if err := assign(pk.ReflectValueOf(ctx, elem.Elem()), item); err != nil {
			return fmt.Errorf("auditlog: failed to set %s.%s key: %w", rel.Schema.Name, rel.Name, err)
		}
		if elemType.Kind() == reflect.Pointer {
			out = reflect.Append(out, elem)
		} else {
			out = reflect.Append(out, elem.Elem())
		}
	}

	if fv.Kind() == reflect.Pointer {
		p := reflect.New(sliceType)
		p.Elem().Set(out)
		fv.Set(p)
		return nil
	}
	fv.Set(out)
	return nil
}
