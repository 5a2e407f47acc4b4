package highlight

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTheme = `<style name="raido-test">
  <entry type="Background" style="bg:#fafafa"/>
  <entry type="Keyword" style="bold #cc0000"/>
</style>
`

func TestRegistry_BuiltinDefault(t *testing.T) {
	r := NewRegistry()
	s, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTheme, s.Name)
}

func TestRegistry_UnknownTheme(t *testing.T) {
	_, err := NewRegistry().Get("does-not-exist")
	assert.Error(t, err)
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mine.xml"), []byte(testTheme), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	r := NewRegistry()
	n, err := r.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, err := r.Get("raido-test")
	require.NoError(t, err)
	assert.Equal(t, "raido-test", s.Name)
	assert.Contains(t, r.Names(), "raido-test")
}

func TestRegistry_LoadDirMissing(t *testing.T) {
	n, err := NewRegistry().LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHighlight_KnownLanguage(t *testing.T) {
	s, err := NewRegistry().Get("github")
	require.NoError(t, err)
	h := New(s)

	var buf bytes.Buffer
	ok, err := h.Highlight(&buf, "go", "package main\n")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, buf.String(), "<pre")
	assert.Contains(t, buf.String(), "style=")
	assert.Contains(t, buf.String(), "package")
}

func TestHighlight_UnknownLanguage(t *testing.T) {
	s, err := NewRegistry().Get("github")
	require.NoError(t, err)

	var buf bytes.Buffer
	ok, err := New(s).Highlight(&buf, "klingon-script", "qapla'")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, buf.Len())
	assert.False(t, Supports("klingon-script"))
	assert.True(t, Supports("python"))
}

func TestHighlight_Deterministic(t *testing.T) {
	s, err := NewRegistry().Get("monokai")
	require.NoError(t, err)
	h := New(s)
	var a, b bytes.Buffer
	_, err = h.Highlight(&a, "python", "def f(x):\n    return x * 2\n")
	require.NoError(t, err)
	_, err = h.Highlight(&b, "python", "def f(x):\n    return x * 2\n")
	require.NoError(t, err)
	assert.Equal(t, a.String(), b.String())
}
