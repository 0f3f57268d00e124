package auditlog

import (
	"bytes"
	"database/sql"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testAuthor struct {
	ID       uint `gorm:"primaryKey"`
	Name     string
	Password string
}

func (testAuthor) TableName() string { return "authors" }
func (testAuthor) LogName() string   { return "library.author" }

type testGenre struct {
	ID    uint `gorm:"primaryKey"`
	Label string
}

func (testGenre) TableName() string { return "genres" }
func (testGenre) LogName() string   { return "library.genre" }

type testBook struct {
	ID        uint `gorm:"primaryKey"`
	Title     string
	AuthorID  uint
	Author    *testAuthor
	Genres    []testGenre `gorm:"many2many:book_genres"`
	Released  time.Time   `gorm:"type:date"`
	UpdatedAt time.Time
	Cover     FieldFile
	Meta      datatypes.JSON
	Price     float64
	Secret    string `auditlog:"-"`
}

func (testBook) TableName() string   { return "books" }
func (testBook) LogName() string     { return "library.book" }
func (testBook) VerboseName() string { return "book" }

// testDoc keeps raw payloads.
type testDoc struct {
	ID   uint `gorm:"primaryKey"`
	Body datatypes.JSON
	Raw  []byte
}

func (testDoc) LogName() string { return "library.doc" }

// testNote is never registered.
type testNote struct {
	ID   uint `gorm:"primaryKey"`
	Body string
}

func (testNote) TableName() string { return "notes" }

func newTestRegistry(t *testing.T, opts ...RegistryOption) *Registry {
	t.Helper()
	r := NewRegistry(opts...)
	require.NoError(t, r.Register(&testAuthor{}, &testGenre{}, &testBook{}))
	return r
}

// openTestDB opens a migrated sqlite database in a temp dir.
func openTestDB(t *testing.T) (*gorm.DB, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auditlog.db")
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(&testAuthor{}, &testGenre{}, &testBook{}, &testNote{}))
	require.NoError(t, NewStore(gdb).Migrate(t.Context()))
	return gdb, sqlDB
}

func newTestHandler(t *testing.T, cfg Config) (*Handler, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	if cfg.Registry == nil {
		cfg.Registry = newTestRegistry(t)
	}
	cfg.Logger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(cfg), &buf
}

func sampleBook() *testBook {
	return &testBook{
		ID:        3,
		Title:     "The Go Programming Language",
		AuthorID:  7,
		Genres:    []testGenre{{ID: 1, Label: "programming"}, {ID: 2, Label: "reference"}},
		Released:  time.Date(2015, 10, 26, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		Cover:     FieldFile{Name: "covers/gopl.png"},
		Meta:      datatypes.JSON(`{"pages":380}`),
		Price:     34.5,
		Secret:    "hidden",
	}
}
