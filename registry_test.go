package auditlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	names := make([]string, 0, 3)
	for _, m := range r.Models() {
		names = append(names, m.LogName)
	}
	assert.Equal(t, []string{"library.author", "library.book", "library.genre"}, names)

	m, err := r.ModelByLogName("library.book")
	require.NoError(t, err)
	assert.Equal(t, "books", m.Table())
	assert.Equal(t, "book", m.VerboseName)
	assert.IsType(t, &testBook{}, m.New().Interface())

	byTable, ok := r.ModelByTable("books")
	require.True(t, ok)
	assert.Same(t, m, byTable)

	byObj, err := r.ModelFor(testBook{})
	require.NoError(t, err)
	assert.Same(t, m, byObj)
}

func TestRegistry_RegisterTwice(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	assert.NoError(t, r.Register(&testBook{}), "same type under the same name is a no-op")
	assert.Error(t, r.RegisterAs("library.book", &testAuthor{}))
	assert.Error(t, r.RegisterAs("library.writer", &testAuthor{}))
}

func TestRegistry_NotLoggable(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	err := r.Register(&testNote{})
	assert.True(t, errors.Is(err, ErrNotLoggable))

	err = r.RegisterAs("  ", &testNote{})
	assert.True(t, errors.Is(err, ErrNotLoggable))

	require.NoError(t, r.RegisterAs("misc.note", &testNote{}))
	m, err := r.ModelFor(&testNote{})
	require.NoError(t, err)
	assert.Equal(t, "misc.note", m.LogName)
	assert.Equal(t, "test note", m.VerboseName)

	_, err = r.ModelFor(&testAuthor{})
	assert.True(t, errors.Is(err, ErrNotLoggable))
}

func TestRegistry_ModelByLogName_Unknown(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.ModelByLogName("library.shelf")
	var mnf *ModelNotFoundError
	require.ErrorAs(t, err, &mnf)
	assert.Equal(t, "library.shelf", mnf.LogName)
	assert.ErrorIs(t, err, ErrModelNotFound)
}
