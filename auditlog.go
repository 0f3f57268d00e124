// Package auditlog records structured change events for gorm models and
// rebuilds past object states from them.
//
// A model becomes loggable by declaring a log name (LogNamer) and being
// registered. Snapshots are produced by Registry.ModelToMap and turned back
// into objects by Registry.ObjectFromLog. Entries are written by a Logger or
// captured from INSERT/UPDATE/DELETE statements executed through a wrapped
// *sql.DB.
package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/jinzhu/inflection"

	"github.com/mickamy/auditlog/internal/buffer"
	"github.com/mickamy/auditlog/internal/ident"
	"github.com/mickamy/auditlog/internal/query"
)

// RedactFunc defines a function used to sanitize or mask values before logging.
type RedactFunc func(key string, v any) any

// RedactMap maps key names to specific redaction functions.
type RedactMap map[string]RedactFunc

// Mask replaces any non-empty value with a fixed marker.
func Mask(_ string, v any) any {
	if v == nil || v == "" {
		return v
	}
	return "********"
}

// Placeholder is the bind parameter style of the wrapped driver.
type Placeholder int

const (
	Question Placeholder = iota // ?, used by sqlite3 and mysql
	Dollar                      // $1, used by pgx
)

// Config defines the main configuration options for auditlog.
type Config struct {
	Registry        *Registry    // loggable models; a fresh registry when nil
	Redact          RedactMap    // optional key-based redaction of snapshots and request blobs
	AppendReturning bool         // capture DML without RETURNING by appending RETURNING *
	Placeholder     Placeholder  // bind style used when flushing captured entries
	Logger          *slog.Logger // operational logger; discards when nil
	FormMemory      int64        // multipart bytes kept in memory by Middleware; 32 MiB when zero
}

// Handler is the main entry point that manages auditlog behavior.
type Handler struct {
	cfg Config
	reg *Registry
	log *slog.Logger
}

// New creates a new Handler instance with sensible defaults.
func New(cfg Config) *Handler {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Redact == nil {
		cfg.Redact = RedactMap{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.FormMemory <= 0 {
		cfg.FormMemory = defaultFormMemory
	}
	return &Handler{cfg: cfg, reg: cfg.Registry, log: cfg.Logger}
}

// Registry returns the registry the handler serializes with.
func (h *Handler) Registry() *Registry {
	return h.reg
}

// Register is a shortcut for h.Registry().Register.
func (h *Handler) Register(models ...any) error {
	return h.reg.Register(models...)
}

// Snapshot serializes obj and applies redaction.
func (h *Handler) Snapshot(ctx context.Context, obj any) (map[string]any, error) {
	m, err := h.reg.ModelToMap(ctx, obj)
	if err != nil {
		return nil, err
	}
	return h.applyRedact(m), nil
}

// applyRedact returns a redacted copy of the given map using cfg.Redact.
func (h *Handler) applyRedact(m map[string]any) map[string]any {
	if m == nil || len(h.cfg.Redact) == 0 {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if fn, ok := h.cfg.Redact[k]; ok && fn != nil {
			out[k] = fn(k, v)
		} else {
			out[k] = v
		}
	}
	return out
}

// DB wraps a *sql.DB instance to capture changes to registered tables.
type DB struct {
	*sql.DB
	h *Handler
}

// WrapDB attaches auditlog to a *sql.DB connection.
func (h *Handler) WrapDB(db *sql.DB) *DB {
	return &DB{DB: db, h: h}
}

// Tx wraps a *sql.Tx and buffers captured entries until Commit.
type Tx struct {
	*sql.Tx
	h   *Handler
	buf *buffer.Buffer[entry]
	ctx context.Context
}

// BeginTx starts a wrapped transaction that records DML changes.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	t, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: t, h: db.h, buf: buffer.NewBuffer[entry](), ctx: ctx}, nil
}

// ExecContext intercepts ExecContext to capture DML on registered tables.
// Statements with RETURNING (or any statement, with Config.AppendReturning)
// are run as queries so the affected rows can be snapshotted: the new row for
// INSERT and UPDATE, the removed row for DELETE.
func (t *Tx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	if extractSkip(ctx) {
		return t.Tx.ExecContext(ctx, q, args...)
	}
	dml, ok := query.ParseDML(q)
	if !ok {
		// Not a recognized DML; just pass-through.
		return t.Tx.ExecContext(ctx, q, args...)
	}
	m, ok := t.h.modelByTable(dml.Table)
	if !ok {
		return t.Tx.ExecContext(ctx, q, args...)
	}
	if !dml.HasReturning {
		if !t.h.cfg.AppendReturning {
			t.h.log.DebugContext(ctx, "auditlog: statement without RETURNING not captured", "table", dml.Table, "op", dml.Op)
			return t.Tx.ExecContext(ctx, q, args...)
		}
		q, _ = query.AppendReturningAll(q)
	}

	rows, err := t.Tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	ms, n, err := scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("auditlog: failed to scan rows: %w", err)
	}
	me := extractMeta(ctx)
	fn := callerName(2)
	for _, row := range ms {
		e, err := t.h.capture(ctx, m, dml.Op, row)
		if err != nil {
			return nil, err
		}
		e.funcName = fn
		e.meta = me
		t.buf.Add(e)
	}
	return newAffectedRows(n), nil
}

// Pending returns how many captured entries wait for Commit.
func (t *Tx) Pending() int {
	return t.buf.Len()
}

// Commit flushes buffered entries into the log table before commit.
// On error the transaction is left open; callers roll it back.
func (t *Tx) Commit() error {
	if err := t.flush(); err != nil {
		return err
	}
	return t.Tx.Commit()
}

// Rollback clears buffered entries and rolls back the transaction.
func (t *Tx) Rollback() error {
	t.buf.Reset()
	return t.Tx.Rollback()
}

var logColumns = []string{
	"action",
	"message",
	"func_name",
	"level",
	"http_general",
	"http_request_get",
	"http_request_post",
	"user_id",
	"username",
	"object_name",
	"object_id",
	"object_data",
	"extra",
	"dc",
}

// flush writes buffered entries into the log table within the same transaction.
func (t *Tx) flush() error {
	rows := t.buf.Drain()
	if len(rows) == 0 {
		return nil
	}

	cols := make([]string, len(logColumns))
	for i, c := range logColumns {
		cols[i] = ident.Quote(c)
	}
	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		ident.QuoteQualified(ident.SplitQualified(TableName)),
		strings.Join(cols, ", "),
		query.Placeholders(len(cols), t.h.cfg.Placeholder == Dollar),
	)

	for _, e := range rows {
		l := e.meta.newLog(e.action, LevelInfo, fmt.Sprintf("%s %s", strings.ToLower(e.op), e.model.LogName), e.funcName)
		data, err := json.Marshal(e.data)
		if err != nil {
			return fmt.Errorf("auditlog: failed to marshal object data: %w", err)
		}
		var extra any
		if x := e.meta.extra(map[string]any{"op": e.op}); x != nil {
			b, err := json.Marshal(x)
			if err != nil {
				return fmt.Errorf("auditlog: failed to marshal extra: %w", err)
			}
			extra = string(b)
		}

		if _, err := t.Tx.ExecContext(
			t.ctx,
			stmt,
			string(l.Action),
			l.Message,
			l.FuncName,
			string(l.Level),
			l.HTTPGeneral,
			l.HTTPRequestGet,
			l.HTTPRequestPost,
			l.UserID,
			l.Username,
			e.model.LogName,
			e.objectID,
			string(data),
			extra,
			time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("auditlog: failed to insert log: %w", err)
		}
	}
	t.h.log.DebugContext(t.ctx, "auditlog: flushed captured entries", "count", len(rows))
	return nil
}

// capture decodes a returned row into its model and snapshots it.
func (h *Handler) capture(ctx context.Context, m *Model, op string, row map[string]any) (entry, error) {
	row = normalizeRow(m.Schema, row)
	obj, err := h.reg.Decode(ctx, m, row)
	if err != nil {
		return entry{}, err
	}
	data, err := h.reg.modelToMap(ctx, obj, false)
	if err != nil {
		return entry{}, err
	}

	id := primaryKeyString(ctx, m.Schema, reflect.ValueOf(obj).Elem())
	if id == "" {
		if v := pickID(m.Table(), row); v != nil {
			id = fmt.Sprint(v)
		}
	}
	return entry{
		model:    m,
		action:   actionOf(op),
		op:       op,
		objectID: id,
		data:     h.applyRedact(data),
	}, nil
}

func (h *Handler) modelByTable(table string) (*Model, bool) {
	if m, ok := h.reg.ModelByTable(ident.Normalize(table)); ok {
		return m, true
	}
	return h.reg.ModelByTable(ident.BaseTableName(table))
}

func actionOf(op string) Action {
	switch op {
	case "INSERT":
		return ActionCreate
	case "UPDATE":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	}
	return ActionOther
}

// pickID attempts to choose a sensible primary key from a row map.
func pickID(table string, row map[string]any) any {
	// Heuristics: "id" first; then "<singular>_id", else nil.
	if v, ok := row["id"]; ok {
		return v
	}
	base := ident.BaseTableName(table)
	singular := inflection.Singular(base)
	singularID := fmt.Sprintf("%s_id", singular)
	if v, ok := row[singularID]; ok {
		return v
	}
	return nil
}

// callerName returns the short name of the function skip frames above the caller.
func callerName(skip int) string {
	pcs := make([]uintptr, 1)
	if runtime.Callers(skip+1, pcs) == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames(pcs).Next()
	name := frame.Function
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
