package demo

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/mickamy/auditlog"
	"github.com/mickamy/auditlog/internal/query"
)

// Env is what Run needs from the caller.
type Env struct {
	SQL     *sql.DB
	Gorm    *gorm.DB
	Handler *auditlog.Handler
	Store   *auditlog.Store
	Log     *slog.Logger
}

// Result reports what Run wrote.
type Result struct {
	Post    *Post
	Logs    []auditlog.Log
	Rebuilt any // the post rebuilt from its first captured log
}

// Migrate creates the demo tables and the log table.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate demo tables: %w", err)
	}
	return auditlog.NewStore(db).Migrate(ctx)
}

// Run writes a user through the Logger, then inserts and updates a post in a
// wrapped transaction, tags it, and reads the history back.
func Run(ctx context.Context, env Env) (*Result, error) {
	if err := env.Handler.Register(Models()...); err != nil {
		return nil, err
	}
	if err := Migrate(ctx, env.Gorm); err != nil {
		return nil, err
	}
	logger := env.Handler.NewLogger(env.Store)

	ctx = auditlog.WithActor(ctx, 1, "demo")
	ctx = auditlog.WithReason(ctx, "demo run")
	if auditlog.TraceIDFromContext(ctx) == "" {
		ctx = auditlog.WithTraceID(ctx, "trace-demo-001")
	}

	author := &User{Username: fmt.Sprintf("writer-%d", time.Now().UnixNano()), Password: "s3cret", JoinedAt: time.Now().UTC()}
	if err := env.Gorm.WithContext(ctx).Create(author).Error; err != nil {
		return nil, fmt.Errorf("failed to create author: %w", err)
	}
	if _, err := logger.Info(ctx, auditlog.ActionCreate, "author registered", author); err != nil {
		return nil, err
	}

	post, err := writePost(ctx, env, author)
	if err != nil {
		return nil, err
	}

	tags := []Tag{{Label: "go"}, {Label: "audit"}}
	if err := env.Gorm.WithContext(ctx).Where(Tag{Label: "go"}).FirstOrCreate(&tags[0]).Error; err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	if err := env.Gorm.WithContext(ctx).Where(Tag{Label: "audit"}).FirstOrCreate(&tags[1]).Error; err != nil {
		return nil, fmt.Errorf("failed to create tag: %w", err)
	}
	if err := env.Gorm.WithContext(ctx).Model(post).Association("Tags").Append(tags); err != nil {
		return nil, fmt.Errorf("failed to tag post: %w", err)
	}
	if _, err := logger.Log(ctx, auditlog.Event{
		Action:  auditlog.ActionUpdate,
		Level:   auditlog.LevelInfo,
		Message: "post tagged",
		Object:  post,
		Extra:   map[string]any{"tags": len(tags)},
	}); err != nil {
		return nil, err
	}

	id := strconv.FormatUint(uint64(post.ID), 10)
	logs, err := env.Store.History(ctx, Post{}.LogName(), id)
	if err != nil {
		return nil, err
	}
	res := &Result{Post: post, Logs: logs}
	if len(logs) > 0 {
		if res.Rebuilt, err = logs[0].ModelObject(ctx, env.Handler.Registry()); err != nil {
			return nil, err
		}
	}
	env.Log.InfoContext(ctx, "demo finished", "post_id", post.ID, "history", len(logs))
	return res, nil
}

// writePost runs the captured transaction: one INSERT and one UPDATE, both
// with RETURNING so the wrapped Tx can snapshot them.
func writePost(ctx context.Context, env Env, author *User) (*Post, error) {
	dollar := env.Gorm.Dialector.Name() == "postgres"
	tx, err := env.Handler.WrapDB(env.SQL).BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin: %w", err)
	}

	now := time.Now().UTC()
	var post Post
	if _, err := tx.ExecContext(ctx, query.Rebind(`
INSERT INTO posts (title, author_id, published_on, cover, draft, created_at)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING *`, dollar),
		"Hello, audit log", author.ID, now.Truncate(24*time.Hour), auditlog.FieldFile{Name: "covers/hello.png"}, true, now,
	); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}

	if err := tx.QueryRowContext(ctx, query.Rebind(`SELECT id FROM posts WHERE author_id = ? ORDER BY id DESC LIMIT 1`, dollar), author.ID).Scan(&post.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to read post id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query.Rebind(`
UPDATE posts SET title = ?, draft = ?
WHERE id = ?
RETURNING *`, dollar), "Hello again, audit log", false, post.ID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	if err := env.Gorm.WithContext(ctx).Preload("Author").First(&post, post.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to reload post: %w", err)
	}
	return &post, nil
}
