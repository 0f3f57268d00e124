package auditlog

// entry represents a change captured inside a wrapped transaction.
type entry struct {
	model    *Model
	action   Action
	op       string
	objectID string
	data     map[string]any
	funcName string
	meta     meta
}

// meta carries operational context for audit trails.
type meta struct {
	userID   int64
	username string
	traceID  string
	reason   string
	request  *Request
}

// extra renders the free-form blob stored with every entry.
func (m meta) extra(more map[string]any) map[string]any {
	out := make(map[string]any, len(more)+2)
	for k, v := range more {
		out[k] = v
	}
	if m.traceID != "" {
		out["trace_id"] = m.traceID
	}
	if m.reason != "" {
		out["reason"] = m.reason
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// newLog fills the actor and request columns shared by every writer.
func (m meta) newLog(action Action, level Level, message, funcName string) *Log {
	l := &Log{
		Action:   action,
		Level:    level,
		Message:  truncate(message, 255),
		FuncName: truncate(funcName, 255),
		UserID:   m.userID,
		Username: truncate(m.username, 255),
	}
	if m.request != nil {
		l.HTTPGeneral = m.request.General
		l.HTTPRequestGet = m.request.Get
		l.HTTPRequestPost = m.request.Post
	}
	return l
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
