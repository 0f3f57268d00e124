package auditlog

import (
	"database/sql/driver"
	"fmt"
	"path"
)

// FieldFile references a stored file by name, relative to the storage root.
// Only the name is persisted; snapshots carry it as a plain string.
type FieldFile struct {
	Name string
}

func (f FieldFile) String() string {
	return f.Name
}

// Base returns the last element of the file name.
func (f FieldFile) Base() string {
	if f.Name == "" {
		return ""
	}
	return path.Base(f.Name)
}

// Value implements driver.Valuer.
func (f FieldFile) Value() (driver.Value, error) {
	return f.Name, nil
}

// Scan implements sql.Scanner.
func (f *FieldFile) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		f.Name = ""
	case string:
		f.Name = v
	case []byte:
		f.Name = string(v)
	default:
		return fmt.Errorf("auditlog: cannot scan %T into FieldFile", src)
	}
	return nil
}

// GormDataType stores file references as strings.
func (FieldFile) GormDataType() string {
	return "string"
}
