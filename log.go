package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// TableName is the table log entries are stored in.
const TableName = "auditlog_log"

// Log is a single audit record. Rows are created once and never modified.
type Log struct {
	ID     uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Action Action `gorm:"size:10;not null;default:''" json:"action"`
	// Message is a free-text description of the event.
	Message  string `gorm:"size:255;not null;default:''" json:"message"`
	FuncName string `gorm:"size:255;not null;default:''" json:"func_name"`
	Level    Level  `gorm:"size:10;not null;default:'NOTSET'" json:"level"`

	HTTPGeneral     string `gorm:"column:http_general;type:text" json:"http_general"`
	HTTPRequestGet  string `gorm:"column:http_request_get;type:text" json:"http_request_get"`
	HTTPRequestPost string `gorm:"column:http_request_post;type:text" json:"http_request_post"`

	UserID   int64  `gorm:"index;not null;default:0" json:"user_id"`
	Username string `gorm:"size:255;index;not null;default:''" json:"username"`

	ObjectName string         `gorm:"size:255;index;not null;default:''" json:"object_name"`
	ObjectID   string         `gorm:"size:64;index;not null;default:''" json:"object_id"`
	ObjectData datatypes.JSON `json:"object_data,omitempty"`

	Extra     datatypes.JSON `json:"extra,omitempty"`
	CreatedAt time.Time      `gorm:"column:dc;autoCreateTime;index" json:"dc"`

	object    any
	objectSet bool
}

func (Log) TableName() string {
	return TableName
}

// Data decodes the object snapshot. An empty snapshot yields nil.
// Numbers are kept as json.Number so large keys survive the round trip.
func (l *Log) Data() (map[string]any, error) {
	if len(bytes.TrimSpace(l.ObjectData)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(l.ObjectData))
	dec.UseNumber()
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("auditlog: failed to decode object data of log %d: %w", l.ID, err)
	}
	return data, nil
}

// ExtraData decodes the free-form extra blob.
func (l *Log) ExtraData() (map[string]any, error) {
	if len(bytes.TrimSpace(l.Extra)) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(l.Extra, &data); err != nil {
		return nil, fmt.Errorf("auditlog: failed to decode extra of log %d: %w", l.ID, err)
	}
	return data, nil
}

// ModelObject reconstructs the logged object. The result is cached on l.
func (l *Log) ModelObject(ctx context.Context, r *Registry) (any, error) {
	if l.objectSet {
		return l.object, nil
	}
	obj, err := r.ObjectFromLog(ctx, l)
	if err != nil {
		return nil, err
	}
	l.object, l.objectSet = obj, true
	return obj, nil
}

// ObjectModelName returns the verbose name of the logged object's model.
func (l *Log) ObjectModelName(ctx context.Context, r *Registry) (string, error) {
	if _, err := l.ModelObject(ctx, r); err != nil {
		return "", err
	}
	m, err := r.ModelByLogName(l.ObjectName)
	if err != nil {
		return "", err
	}
	return m.VerboseName, nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
