package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postSchema = `{
  "type": "object",
  "required": ["title", "content"],
  "properties": {
    "title": {"type": "string"},
    "content": {"type": "string"}
  }
}`

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	return NewRegistry(dir), dir
}

func TestMissingDirectoryYieldsEmptyRegistry(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "nope"))
	assert.Empty(t, r.Names())
	assert.True(t, r.Validate("anything", map[string]interface{}{"x": 1}).Valid)
}

func TestValidateWithoutSchemaIsValid(t *testing.T) {
	r, _ := newTestRegistry(t)
	for _, doc := range []interface{}{
		nil,
		true,
		float64(42),
		"text",
		[]interface{}{1, 2},
		map[string]interface{}{"k": "v"},
	} {
		assert.True(t, r.Validate("unregistered", doc).Valid)
	}
}

func TestValidateEnforcesSchema(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post.json"), []byte(postSchema), 0o644))
	require.NoError(t, r.Reload())
	require.True(t, r.Has("post"))

	res := r.Validate("post", map[string]interface{}{"title": "x"})
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Errors)
	found := false
	for _, e := range res.Errors {
		if strings.Contains(e, "content") {
			found = true
		}
	}
	assert.True(t, found, "error list should mention the missing content property: %v", res.Errors)

	res = r.Validate("post", map[string]interface{}{"title": "x", "content": "y"})
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestBadSchemaFileIsSkipped(t *testing.T) {
	r, dir := newTestRegistry(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.json"), []byte(postSchema), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, r.Reload())

	assert.True(t, r.Has("good"))
	assert.False(t, r.Has("bad"))
	// documents named after the bad schema validate unconditionally
	assert.True(t, r.Validate("bad", map[string]interface{}{}).Valid)
}

func TestSaveRegistersImmediately(t *testing.T) {
	r, _ := newTestRegistry(t)
	schema := map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"name"},
	}
	require.NoError(t, r.Save("widget", schema))

	assert.True(t, r.Has("widget"))
	got, ok := r.Get("widget")
	require.True(t, ok)
	assert.Equal(t, "object", got.(map[string]interface{})["type"])

	res := r.Validate("widget", map[string]interface{}{})
	assert.False(t, res.Valid)
	res = r.Validate("widget", map[string]interface{}{"name": "w"})
	assert.True(t, res.Valid)
}

func TestSaveRejectsUncompilableSchema(t *testing.T) {
	r, dir := newTestRegistry(t)
	// "type" must be a string or array of strings per the metaschema
	err := r.Save("broken", map[string]interface{}{"type": float64(12)})
	require.ErrorIs(t, err, ErrInvalidSchema)

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "a rejected schema must not touch disk")
}

func TestDeleteUnregisters(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Save("gone", map[string]interface{}{"type": "object"}))
	require.True(t, r.Has("gone"))

	require.NoError(t, r.Delete("gone"))
	assert.False(t, r.Has("gone"))
	assert.ErrorIs(t, r.Delete("gone"), ErrNotFound)
}

func TestNamesListsAllSchemas(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.Save("one", map[string]interface{}{"type": "object"}))
	require.NoError(t, r.Save("two", map[string]interface{}{"type": "array"}))
	assert.ElementsMatch(t, []string{"one", "two"}, r.Names())
}
