package auditlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Info(t *testing.T) {
	t.Parallel()

	gdb, _ := openTestDB(t)
	h, out := newTestHandler(t, Config{Redact: RedactMap{"password": Mask}})
	store := NewStore(gdb)
	logger := h.NewLogger(store)

	ctx := WithActor(t.Context(), 42, "ann")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithReason(ctx, "signup")

	author := &testAuthor{ID: 8, Name: "Knuth", Password: "hunter2"}
	l, err := logger.Info(ctx, ActionCreate, "author added", author)
	require.NoError(t, err)
	require.NotNil(t, l)

	got, err := store.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, got.Action)
	assert.Equal(t, LevelInfo, got.Level)
	assert.Equal(t, "author added", got.Message)
	assert.True(t, strings.HasPrefix(got.FuncName, "auditlog.TestLogger_Info"), got.FuncName)
	assert.Equal(t, int64(42), got.UserID)
	assert.Equal(t, "ann", got.Username)
	assert.Equal(t, "library.author", got.ObjectName)
	assert.Equal(t, "8", got.ObjectID)

	data, err := got.Data()
	require.NoError(t, err)
	assert.Equal(t, "********", data["password"])
	assert.Equal(t, "Knuth", data["name"])

	extra, err := got.ExtraData()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"trace_id": "trace-1", "reason": "signup"}, extra)

	obj, err := got.ModelObject(ctx, h.Registry())
	require.NoError(t, err)
	assert.Equal(t, &testAuthor{ID: 8, Name: "Knuth", Password: "********"}, obj)

	assert.Contains(t, out.String(), `"msg":"author added"`)
	assert.Contains(t, out.String(), `"object_name":"library.author"`)
}

func TestLogger_Log(t *testing.T) {
	t.Parallel()

	gdb, _ := openTestDB(t)
	h, _ := newTestHandler(t, Config{})
	logger := h.NewLogger(NewStore(gdb))

	l, err := logger.Log(t.Context(), Event{
		Action:  ActionOther,
		Level:   LevelCritical,
		Message: strings.Repeat("x", 300),
		Extra:   map[string]any{"job": "nightly"},
	})
	require.NoError(t, err)
	assert.Len(t, l.Message, 255)
	assert.Empty(t, l.ObjectName)
	assert.Nil(t, []byte(l.ObjectData))
	assert.JSONEq(t, `{"job":"nightly"}`, string(l.Extra))
	assert.Contains(t, l.FuncName, "TestLogger_Log")
}

func TestLogger_NoExtra(t *testing.T) {
	t.Parallel()

	gdb, _ := openTestDB(t)
	h, _ := newTestHandler(t, Config{})
	logger := h.NewLogger(NewStore(gdb))

	l, err := logger.Debug(t.Context(), ActionView, "looked", nil)
	require.NoError(t, err)
	assert.Nil(t, []byte(l.Extra))
	assert.Equal(t, LevelDebug, l.Level)
}

func TestLogger_Skip(t *testing.T) {
	t.Parallel()

	gdb, _ := openTestDB(t)
	h, _ := newTestHandler(t, Config{})
	store := NewStore(gdb)
	logger := h.NewLogger(store)

	l, err := logger.Warning(WithSkip(t.Context()), ActionDelete, "ignored", nil)
	require.NoError(t, err)
	assert.Nil(t, l)

	logs, err := store.List(t.Context(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestLogger_Rejects(t *testing.T) {
	t.Parallel()

	gdb, _ := openTestDB(t)
	h, _ := newTestHandler(t, Config{})
	logger := h.NewLogger(NewStore(gdb))

	_, err := logger.Error(t.Context(), ActionCreate, "note", &testNote{ID: 1})
	assert.ErrorIs(t, err, ErrNotLoggable)

	_, err = logger.Log(t.Context(), Event{Action: "purge"})
	assert.Error(t, err)

	_, err = logger.Log(t.Context(), Event{Level: "LOUD"})
	assert.Error(t, err)
}
