package auditlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Filter narrows Store.List. Zero fields are ignored.
type Filter struct {
	ObjectName string
	ObjectID   string
	UserID     int64
	Username   string
	Action     Action
	Level      Level
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Store persists log entries through gorm. It never updates or deletes rows.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Migrate creates or updates the log table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Log{}); err != nil {
		return fmt.Errorf("auditlog: failed to migrate %s: %w", TableName, err)
	}
	return nil
}

// Create inserts l and fills its ID and creation time.
func (s *Store) Create(ctx context.Context, l *Log) error {
	if l.ID != 0 {
		return fmt.Errorf("auditlog: log %d already stored", l.ID)
	}
	if !l.Action.Valid() {
		return fmt.Errorf("auditlog: unknown action %q", l.Action)
	}
	if l.Level == "" {
		l.Level = LevelNotSet
	}
	if !l.Level.Valid() {
		return fmt.Errorf("auditlog: unknown level %q", l.Level)
	}
	// captured entries are stamped in UTC as well; keep dc ordering comparable
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC()
	if err := s.db.WithContext(ctx).Create(l).Error; err != nil {
		return fmt.Errorf("auditlog: failed to create log: %w", err)
	}
	return nil
}

// Get loads a single entry.
func (s *Store) Get(ctx context.Context, id uint) (*Log, error) {
	var l Log
	if err := s.db.WithContext(ctx).First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrLogNotFound, id)
		}
		return nil, fmt.Errorf("auditlog: failed to get log %d: %w", id, err)
	}
	return &l, nil
}

// List returns matching entries, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Log, error) {
	q := s.db.WithContext(ctx).Model(&Log{})
	if f.ObjectName != "" {
		q = q.Where("object_name = ?", f.ObjectName)
	}
	if f.ObjectID != "" {
		q = q.Where("object_id = ?", f.ObjectID)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Username != "" {
		q = q.Where("username = ?", f.Username)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	// dc is stored in UTC and sqlite compares it as text
	if !f.Since.IsZero() {
		q = q.Where("dc >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("dc < ?", f.Until.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	q = q.Order("dc DESC").Order("id DESC").Limit(limit)
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var out []Log
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("auditlog: failed to list logs: %w", err)
	}
	return out, nil
}

// History returns every entry of one object, oldest first.
func (s *Store) History(ctx context.Context, objectName, objectID string) ([]Log, error) {
	var out []Log
	err := s.db.WithContext(ctx).
		Where("object_name = ? AND object_id = ?", objectName, objectID).
		Order("dc ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("auditlog: failed to load history of %s %s: %w", objectName, objectID, err)
	}
	return out, nil
}
