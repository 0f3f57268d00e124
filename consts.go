package auditlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Action tags what happened to the logged object.
type Action string

const (
	ActionNone   Action = ""
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionView   Action = "view"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
	ActionOther  Action = "other"
)

// Actions lists every accepted action, the empty one included.
var Actions = []Action{
	ActionNone,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionView,
	ActionLogin,
	ActionLogout,
	ActionOther,
}

// Valid reports whether a is one of Actions.
func (a Action) Valid() bool {
	for _, v := range Actions {
		if a == v {
			return true
		}
	}
	return false
}

// ParseAction accepts action tags case-insensitively.
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if !a.Valid() {
		return ActionNone, fmt.Errorf("auditlog: unknown action %q", s)
	}
	return a, nil
}

// Level is the severity stored with a log entry.
type Level string

const (
	LevelNotSet   Level = "NOTSET"
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

// Levels lists every accepted level from least to most severe.
var Levels = []Level{
	LevelNotSet,
	LevelDebug,
	LevelInfo,
	LevelWarning,
	LevelError,
	LevelCritical,
}

func (l Level) Valid() bool {
	for _, v := range Levels {
		if l == v {
			return true
		}
	}
	return false
}

// ParseLevel accepts level names case-insensitively; "WARN" is an alias of WARNING.
func ParseLevel(s string) (Level, error) {
	up := strings.ToUpper(strings.TrimSpace(s))
	if up == "WARN" {
		return LevelWarning, nil
	}
	l := Level(up)
	if !l.Valid() {
		return LevelNotSet, fmt.Errorf("auditlog: unknown level %q", s)
	}
	return l, nil
}

// SlogLevel maps l onto the slog scale. CRITICAL sits above slog.LevelError.
func (l Level) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo, LevelNotSet:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelCritical:
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}
