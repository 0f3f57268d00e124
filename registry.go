package auditlog

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LogNamer marks a model as loggable. LogName is the tag stored in Log.ObjectName.
type LogNamer interface {
	LogName() string
}

// VerboseNamer provides a human-readable model name.
type VerboseNamer interface {
	VerboseName() string
}

// Model is a registered loggable type.
type Model struct {
	LogName     string
	VerboseName string
	Type        reflect.Type // struct type, never a pointer
	Schema      *schema.Schema
}

// Table returns the table gorm maps the model to.
func (m *Model) Table() string {
	return m.Schema.Table
}

// New returns a pointer to a zero value of the model.
func (m *Model) New() reflect.Value {
	return reflect.New(m.Type)
}

// Registry holds the loggable models and the gorm schema metadata both
// conversions walk.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Model
	byType  map[reflect.Type]*Model
	byTable map[string]*Model

	cache *sync.Map
	namer schema.Namer
	db    *gorm.DB
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithNamer overrides the naming strategy used to parse schemas.
func WithNamer(n schema.Namer) RegistryOption {
	return func(r *Registry) {
		if n != nil {
			r.namer = n
		}
	}
}

// WithDB binds the registry to a gorm connection. Many-to-many associations
// are then loaded from the database during serialization, and the
// connection's naming strategy is used unless WithNamer says otherwise.
func WithDB(db *gorm.DB) RegistryOption {
	return func(r *Registry) {
		r.db = db
		if db != nil && db.Config != nil && db.NamingStrategy != nil {
			r.namer = db.NamingStrategy
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:  map[string]*Model{},
		byType:  map[reflect.Type]*Model{},
		byTable: map[string]*Model{},
		cache:   &sync.Map{},
		namer:   schema.NamingStrategy{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds models that implement LogNamer.
func (r *Registry) Register(models ...any) error {
	for _, m := range models {
		name, ok := logNameOf(m)
		if !ok {
			return fmt.Errorf("%w: %T declares no log name", ErrNotLoggable, m)
		}
		if err := r.RegisterAs(name, m); err != nil {
			return err
		}
	}
	return nil
}

// RegisterAs adds a model under an explicit log name.
func (r *Registry) RegisterAs(name string, model any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty log name for %T", ErrNotLoggable, model)
	}
	s, err := r.Schema(model)
	if err != nil {
		return err
	}
	typ := s.ModelType

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[name]; ok {
		if prev.Type == typ {
			return nil
		}
		return fmt.Errorf("auditlog: log name %q already registered for %v", name, prev.Type)
	}
	if prev, ok := r.byType[typ]; ok {
		return fmt.Errorf("auditlog: %v already registered as %q", typ, prev.LogName)
	}

	m := &Model{
		LogName:     name,
		VerboseName: verboseNameOf(typ),
		Type:        typ,
		Schema:      s,
	}
	r.byName[name] = m
	r.byType[typ] = m
	r.byTable[s.Table] = m
	return nil
}

// Models returns the registered models sorted by log name.
func (r *Registry) Models() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Model, 0, len(r.byName))
	for _, m := range r.byName {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LogName < out[j].LogName })
	return out
}

// ModelByLogName looks a model up by its log name.
func (r *Registry) ModelByLogName(name string) (*Model, error) {
	r.mu.RLock()
	m, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ModelNotFoundError{LogName: name}
	}
	return m, nil
}

// ModelByTable looks a model up by its (unqualified) table name.
func (r *Registry) ModelByTable(table string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byTable[table]
	return m, ok
}

// ModelFor returns the registered model of obj's type.
func (r *Registry) ModelFor(obj any) (*Model, error) {
	typ := indirectType(reflect.TypeOf(obj))
	if typ == nil {
		return nil, errors.New("auditlog: nil object")
	}
	r.mu.RLock()
	m, ok := r.byType[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %v is not registered", ErrNotLoggable, typ)
	}
	return m, nil
}

// Schema parses (and caches) the gorm schema of any struct model.
func (r *Registry) Schema(model any) (*schema.Schema, error) {
	if model == nil {
		return nil, errors.New("auditlog: nil model")
	}
	s, err := schema.Parse(model, r.cache, r.namer)
	if err != nil {
		return nil, fmt.Errorf("auditlog: failed to parse schema of %T: %w", model, err)
	}
	return s, nil
}

func logNameOf(model any) (string, bool) {
	if n, ok := model.(LogNamer); ok {
		name := strings.TrimSpace(n.LogName())
		return name, name != ""
	}
	typ := indirectType(reflect.TypeOf(model))
	if typ == nil || typ.Kind() != reflect.Struct {
		return "", false
	}
	if n, ok := reflect.New(typ).Interface().(LogNamer); ok {
		name := strings.TrimSpace(n.LogName())
		return name, name != ""
	}
	return "", false
}

func verboseNameOf(typ reflect.Type) string {
	if n, ok := reflect.New(typ).Interface().(VerboseNamer); ok {
		if name := strings.TrimSpace(n.VerboseName()); name != "" {
			return name
		}
	}
	return strings.ReplaceAll(toSnakeCase(typ.Name()), "_", " ")
}

func indirectType(typ reflect.Type) reflect.Type {
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	return typ
}
