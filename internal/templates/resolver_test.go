package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemplate(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestResolveSubstitutesKnownVariables(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "remind.txt", "{{.ProjectName}} is due in {{.TimeToDeadlineMin}} minutes")

	r, err := New(dir, 8)
	require.NoError(t, err)

	out, err := r.Resolve("remind.txt", Context{ProjectName: "alpha", TimeToDeadlineMin: 42})
	require.NoError(t, err)
	assert.Equal(t, "alpha is due in 42 minutes", out)
}

func TestResolveMissingVariableRendersEmpty(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "t.txt", "channel=[{{.Channel}}]")

	r, err := New(dir, 8)
	require.NoError(t, err)

	out, err := r.Resolve("t.txt", Context{ProjectName: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, "channel=[]", out)
}

func TestResolveCachesParsedTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "cached.txt", "v1: {{.Stage}}")

	r, err := New(dir, 8)
	require.NoError(t, err)

	first, err := r.Resolve("cached.txt", Context{Stage: "OK"})
	require.NoError(t, err)
	assert.Equal(t, "v1: OK", first)

	// Even though the underlying file changes, the cached parse is reused.
	writeTemplate(t, dir, "cached.txt", "v2: {{.Stage}}")
	second, err := r.Resolve("cached.txt", Context{Stage: "FULL"})
	require.NoError(t, err)
	assert.Equal(t, "v1: FULL", second)
}

func TestResolveMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	r, err := New(dir, 8)
	require.NoError(t, err)

	_, err = r.Resolve("nope.txt", Context{})
	assert.Error(t, err)
}
