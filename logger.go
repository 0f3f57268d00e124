package auditlog

import (
	"context"
	"fmt"
	"reflect"
)

// Event describes one entry written by a Logger.
type Event struct {
	Action  Action
	Level   Level
	Message string
	// Object is the affected model instance; it must be registered.
	Object any
	Extra  map[string]any

	funcName string
}

// Logger writes events to a Store.
type Logger struct {
	h     *Handler
	store *Store
}

// NewLogger returns a Logger writing through store.
func (h *Handler) NewLogger(store *Store) *Logger {
	return &Logger{h: h, store: store}
}

// Log stores ev. It returns nil, nil when the context carries WithSkip.
func (l *Logger) Log(ctx context.Context, ev Event) (*Log, error) {
	if ev.funcName == "" {
		ev.funcName = callerName(2)
	}
	return l.write(ctx, ev)
}

func (l *Logger) Debug(ctx context.Context, action Action, message string, obj any) (*Log, error) {
	return l.write(ctx, Event{Action: action, Level: LevelDebug, Message: message, Object: obj, funcName: callerName(2)})
}

func (l *Logger) Info(ctx context.Context, action Action, message string, obj any) (*Log, error) {
	return l.write(ctx, Event{Action: action, Level: LevelInfo, Message: message, Object: obj, funcName: callerName(2)})
}

func (l *Logger) Warning(ctx context.Context, action Action, message string, obj any) (*Log, error) {
	return l.write(ctx, Event{Action: action, Level: LevelWarning, Message: message, Object: obj, funcName: callerName(2)})
}

func (l *Logger) Error(ctx context.Context, action Action, message string, obj any) (*Log, error) {
	return l.write(ctx, Event{Action: action, Level: LevelError, Message: message, Object: obj, funcName: callerName(2)})
}

func (l *Logger) Critical(ctx context.Context, action Action, message string, obj any) (*Log, error) {
	return l.write(ctx, Event{Action: action, Level: LevelCritical, Message: message, Object: obj, funcName: callerName(2)})
}

func (l *Logger) write(ctx context.Context, ev Event) (*Log, error) {
	if extractSkip(ctx) {
		return nil, nil
	}
	if !ev.Action.Valid() {
		return nil, fmt.Errorf("auditlog: unknown action %q", ev.Action)
	}
	if ev.Level == "" {
		ev.Level = LevelNotSet
	}
	if !ev.Level.Valid() {
		return nil, fmt.Errorf("auditlog: unknown level %q", ev.Level)
	}

	me := extractMeta(ctx)
	entry := me.newLog(ev.Action, ev.Level, ev.Message, ev.funcName)

	if ev.Object != nil {
		m, err := l.h.reg.ModelFor(ev.Object)
		if err != nil {
			return nil, err
		}
		data, err := l.h.Snapshot(ctx, ev.Object)
		if err != nil {
			return nil, err
		}
		if entry.ObjectData, err = marshalJSON(data); err != nil {
			return nil, fmt.Errorf("auditlog: failed to marshal object data: %w", err)
		}
		entry.ObjectName = m.LogName
		ptr, _ := addressable(ev.Object)
		entry.ObjectID = primaryKeyString(ctx, m.Schema, reflect.Indirect(ptr))
	}

	if x := me.extra(ev.Extra); x != nil {
		extra, err := marshalJSON(x)
		if err != nil {
			return nil, fmt.Errorf("auditlog: failed to marshal extra: %w", err)
		}
		entry.Extra = extra
	}

	if err := l.store.Create(ctx, entry); err != nil {
		return nil, err
	}

	l.h.log.Log(ctx, ev.Level.SlogLevel(), entry.Message,
		"action", string(entry.Action),
		"func", entry.FuncName,
		"user_id", entry.UserID,
		"username", entry.Username,
		"object_name", entry.ObjectName,
		"object_id", entry.ObjectID,
		"log_id", entry.ID,
	)
	return entry, nil
}
