package auditlog

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func snapshotLog(t *testing.T, r *Registry, obj any, name string) *Log {
	t.Helper()
	data, err := r.ModelToMap(t.Context(), obj)
	require.NoError(t, err)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	return &Log{ID: 1, ObjectName: name, ObjectData: b}
}

func TestObjectFromLog_RoundTrip(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	orig := sampleBook()
	l := snapshotLog(t, r, orig, "library.book")

	obj, err := r.ObjectFromLog(t.Context(), l)
	require.NoError(t, err)
	book, ok := obj.(*testBook)
	require.True(t, ok, "got %T", obj)

	assert.Equal(t, orig.ID, book.ID)
	assert.Equal(t, orig.Title, book.Title)
	assert.Equal(t, orig.AuthorID, book.AuthorID, "author key is renamed back to author_id")
	assert.Nil(t, book.Author)
	assert.True(t, orig.Released.Equal(book.Released))
	assert.True(t, orig.UpdatedAt.Equal(book.UpdatedAt))
	assert.Equal(t, orig.Cover, book.Cover)
	assert.JSONEq(t, string(orig.Meta), string(book.Meta))
	assert.InDelta(t, orig.Price, book.Price, 0.0001)
	assert.Empty(t, book.Secret)

	require.Len(t, book.Genres, 2)
	assert.Equal(t, []testGenre{{ID: 1}, {ID: 2}}, book.Genres)
}

func TestObjectFromLog_Microseconds(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	orig := sampleBook()
	orig.UpdatedAt = time.Date(2024, 3, 1, 12, 30, 0, 123456000, time.FixedZone("", 9*3600))
	l := snapshotLog(t, r, orig, "library.book")

	data, err := l.Data()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:30:00.123456+09:00", data["updated_at"])

	obj, err := r.ObjectFromLog(t.Context(), l)
	require.NoError(t, err)
	assert.True(t, orig.UpdatedAt.Equal(obj.(*testBook).UpdatedAt))
}

func TestObjectFromLog_ScalarJSONAndBytes(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&testDoc{}))

	tcs := []struct {
		name string
		doc  *testDoc
	}{
		{name: "json string of digits", doc: &testDoc{ID: 1, Body: datatypes.JSON(`"123"`)}},
		{name: "json string of bool", doc: &testDoc{ID: 2, Body: datatypes.JSON(`"true"`)}},
		{name: "json string of object", doc: &testDoc{ID: 3, Body: datatypes.JSON(`"{\"a\":1}"`)}},
		{name: "json number", doc: &testDoc{ID: 4, Body: datatypes.JSON(`123`)}},
		// base64 of these bytes is "1234"
		{name: "digit-only base64 bytes", doc: &testDoc{ID: 5, Body: datatypes.JSON(`{"a":1}`), Raw: []byte{0xd7, 0x6d, 0xf8}}},
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			l := snapshotLog(t, r, tc.doc, "library.doc")
			obj, err := r.ObjectFromLog(t.Context(), l)
			require.NoError(t, err)
			got, ok := obj.(*testDoc)
			require.True(t, ok, "got %T", obj)

			assert.JSONEq(t, string(tc.doc.Body), string(got.Body))
			assert.Equal(t, tc.doc.Raw, got.Raw)

			again := snapshotLog(t, r, got, "library.doc")
			assert.JSONEq(t, string(l.ObjectData), string(again.ObjectData))
		})
	}
}

func TestObjectFromLog_Empty(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	tcs := []struct {
		name string
		data string
	}{
		{name: "no snapshot", data: ""},
		{name: "empty object", data: "{}"},
		{name: "whitespace", data: "  "},
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// an empty snapshot wins over an unknown model
			obj, err := r.ObjectFromLog(t.Context(), &Log{ObjectName: "nope", ObjectData: []byte(tc.data)})
			require.NoError(t, err)
			assert.Nil(t, obj)
		})
	}
}

func TestObjectFromLog_UnknownModel(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.ObjectFromLog(t.Context(), &Log{ObjectName: "shop.order", ObjectData: []byte(`{"id":1}`)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotFound))

	var mnf *ModelNotFoundError
	require.True(t, errors.As(err, &mnf))
	assert.Equal(t, "shop.order", mnf.LogName)
	assert.Equal(t, `auditlog: model with log name "shop.order" not found`, err.Error())
}

func TestObjectFromMap_IgnoresUnknownKeys(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	obj, err := r.ObjectFromMap(t.Context(), "library.author", map[string]any{
		"id":       json.Number("12"),
		"name":     "Pike",
		"nickname": "rob",
	})
	require.NoError(t, err)
	assert.Equal(t, &testAuthor{ID: 12, Name: "Pike"}, obj)
}

func TestObjectFromMap_BadValue(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.ObjectFromMap(t.Context(), "library.book", map[string]any{"price": "expensive"})
	assert.Error(t, err)

	_, err = r.ObjectFromMap(t.Context(), "library.book", map[string]any{"genres": "1,2"})
	assert.Error(t, err)
}

func TestLog_ModelObjectCached(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	l := snapshotLog(t, r, &testAuthor{ID: 5, Name: "Thompson"}, "library.author")

	first, err := l.ModelObject(t.Context(), r)
	require.NoError(t, err)
	second, err := l.ModelObject(t.Context(), r)
	require.NoError(t, err)
	assert.Same(t, first.(*testAuthor), second.(*testAuthor))

	name, err := l.ObjectModelName(t.Context(), r)
	require.NoError(t, err)
	assert.Equal(t, "test author", name)
}
